// Package config loads the flagstage daemon configuration from YAML.
//
// Load starts from Default and overlays the file, so a partial file only
// needs the keys it changes. A missing file is not an error.
package config
