// Package bootstrap applies the device image's default flag values on the
// first boot that finds them. Each line of the defaults file has the form
//
//	<namespace>:<flag>=enabled|disabled
//
// and is stored as "true" or "false". Completion is recorded under
// DeviceConfigBootstrapValues/processed_values so later boots skip the file.
package bootstrap
