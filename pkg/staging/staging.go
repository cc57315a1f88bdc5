package staging

import (
	"errors"
	"fmt"
	"sort"

	"github.com/cuemby/flagstage/pkg/log"
	"github.com/cuemby/flagstage/pkg/metrics"
	"github.com/cuemby/flagstage/pkg/types"
)

// ErrStageFailed is returned when the staged value could not be stored
var ErrStageFailed = errors.New("failed to store staged value")

// Properties is the subset of deviceconfig.Service used here
type Properties interface {
	GetProperties(namespace string, keys ...string) map[string]string
	SetProperty(namespace, key, value string, makeDefault bool) bool
	DeleteProperty(namespace, key string) bool
}

// Result counts what one Apply pass did
type Result struct {
	Applied      int
	Malformed    int
	Failed       int
	DeleteFailed int
}

// Stage records value for namespace/key so that it takes effect on the
// next boot
func Stage(props Properties, namespace, key, value string) error {
	name, err := types.StagedName(namespace, key)
	if err != nil {
		return err
	}
	if !props.SetProperty(types.NamespaceRebootStaging, name, value, false) {
		return fmt.Errorf("%w: %s", ErrStageFailed, name)
	}
	return nil
}

// Unstage drops a pending value. It reports whether one was staged.
func Unstage(props Properties, namespace, key string) (bool, error) {
	name, err := types.StagedName(namespace, key)
	if err != nil {
		return false, err
	}
	return props.DeleteProperty(types.NamespaceRebootStaging, name), nil
}

// List returns the pending values decoded to their destination. Entries
// whose names do not decode are returned with an empty Namespace and the
// raw name as Key.
func List(props Properties) []types.ConfigEntry {
	staged := props.GetProperties(types.NamespaceRebootStaging)
	entries := make([]types.ConfigEntry, 0, len(staged))
	for _, name := range sortedKeys(staged) {
		ns, key, err := types.ParseStagedName(name)
		if err != nil {
			entries = append(entries, types.ConfigEntry{Key: name, Value: staged[name]})
			continue
		}
		entries = append(entries, types.ConfigEntry{Namespace: ns, Key: key, Value: staged[name]})
	}
	return entries
}

// Apply promotes every staged value to its live namespace and removes it
// from staging. Malformed names are left in place. A value that fails to
// apply is kept for the next boot. A value that applied but could not be
// removed is not applied again in this pass.
func Apply(props Properties) Result {
	logger := log.WithComponent("staging")
	var res Result

	staged := props.GetProperties(types.NamespaceRebootStaging)
	for _, name := range sortedKeys(staged) {
		value := staged[name]

		namespace, key, err := types.ParseStagedName(name)
		if err != nil {
			logger.Warn().Err(err).Str("name", name).Msg("Skipping malformed staged value")
			res.Malformed++
			metrics.StagedApplyTotal.WithLabelValues("malformed").Inc()
			continue
		}

		if !props.SetProperty(namespace, key, value, true) {
			logger.Warn().
				Str("namespace", namespace).
				Str("key", key).
				Msg("Failed to apply staged value, keeping it for next boot")
			res.Failed++
			metrics.StagedApplyTotal.WithLabelValues("failed").Inc()
			continue
		}
		res.Applied++
		metrics.StagedApplyTotal.WithLabelValues("applied").Inc()

		if !props.DeleteProperty(types.NamespaceRebootStaging, name) {
			logger.Warn().Str("name", name).Msg("Applied staged value but failed to remove it")
			res.DeleteFailed++
			metrics.StagedApplyTotal.WithLabelValues("delete_failed").Inc()
		}
	}

	if len(staged) > 0 {
		logger.Info().
			Int("applied", res.Applied).
			Int("malformed", res.Malformed).
			Int("failed", res.Failed).
			Msg("Applied staged values")
	}
	return res
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
