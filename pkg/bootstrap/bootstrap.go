package bootstrap

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/cuemby/flagstage/pkg/log"
	"github.com/cuemby/flagstage/pkg/metrics"
	"github.com/cuemby/flagstage/pkg/types"
)

const (
	// MetaNamespace records that the defaults file has been processed
	MetaNamespace = "DeviceConfigBootstrapValues"
	MetaKey       = "processed_values"
)

// DefaultPath is where the defaults file ships on a device image
const DefaultPath = "/etc/flagstage/device-config-defaults"

// ErrInvalidLine is returned for a line that does not follow
// <namespace>:<flag>=enabled|disabled
var ErrInvalidLine = errors.New("invalid bootstrap line")

// Properties is the subset of deviceconfig.Service used here
type Properties interface {
	GetProperties(namespace string, keys ...string) map[string]string
	SetProperty(namespace, key, value string, makeDefault bool) bool
}

// Status reports what ApplyIfNeeded did
type Status string

const (
	StatusApplied          Status = "applied"
	StatusAlreadyProcessed Status = "already_processed"
	StatusNotFound         Status = "not_found"
)

// ApplyIfNeeded writes the defaults in path once per device. A missing
// file is not an error. The whole file is parsed before anything is
// written, so a bad line leaves the store untouched and the file
// unprocessed.
func ApplyIfNeeded(props Properties, path string) (Status, error) {
	logger := log.WithComponent("bootstrap")

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info().Str("path", path).Msg("Bootstrap values not found")
			return StatusNotFound, nil
		}
		return "", fmt.Errorf("failed to stat bootstrap file: %w", err)
	}

	if len(props.GetProperties(MetaNamespace)) > 0 {
		logger.Info().Msg("Bootstrap values already processed, not processing again")
		return StatusAlreadyProcessed, nil
	}

	entries, err := ParseFile(path)
	if err != nil {
		metrics.BootstrapValuesTotal.WithLabelValues("invalid").Inc()
		return "", err
	}

	for _, e := range entries {
		if !props.SetProperty(e.Namespace, e.Key, e.Value, true) {
			return "", fmt.Errorf("failed to set bootstrap value [%s] %s=%s", e.Namespace, e.Key, e.Value)
		}
		metrics.BootstrapValuesTotal.WithLabelValues("applied").Inc()
	}

	if !props.SetProperty(MetaNamespace, MetaKey, "true", true) {
		return "", fmt.Errorf("failed to mark bootstrap values processed")
	}

	logger.Info().Int("values", len(entries)).Str("path", path).Msg("Applied bootstrap values")
	return StatusApplied, nil
}

// ParseFile reads every entry of a defaults file. Blank lines and lines
// starting with '#' are skipped.
func ParseFile(path string) ([]types.ConfigEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open bootstrap file: %w", err)
	}
	defer f.Close()

	var entries []types.ConfigEntry
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entry, err := ParseLine(line)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read bootstrap file: %w", err)
	}
	return entries, nil
}

// ParseLine decodes "<namespace>:<flag>=enabled|disabled" into a boolean
// string value
func ParseLine(line string) (types.ConfigEntry, error) {
	namespace, rest, ok := strings.Cut(line, ":")
	if !ok || namespace == "" {
		return types.ConfigEntry{}, fmt.Errorf("%w: missing namespace in %q", ErrInvalidLine, line)
	}
	key, state, ok := strings.Cut(rest, "=")
	if !ok || key == "" {
		return types.ConfigEntry{}, fmt.Errorf("%w: missing flag name in %q", ErrInvalidLine, line)
	}

	var value string
	switch state {
	case "enabled":
		value = "true"
	case "disabled":
		value = "false"
	default:
		return types.ConfigEntry{}, fmt.Errorf("%w: unexpected value %q", ErrInvalidLine, state)
	}
	return types.ConfigEntry{Namespace: namespace, Key: key, Value: value}, nil
}
