package deviceconfig

import (
	"errors"
	"sort"
	"strings"

	"github.com/cuemby/flagstage/pkg/events"
	"github.com/cuemby/flagstage/pkg/log"
	"github.com/cuemby/flagstage/pkg/metrics"
	"github.com/cuemby/flagstage/pkg/storage"
)

var errEmptyNamespace = errors.New("namespace must be non-empty")

// Service is the property API in front of a Store. Store failures never
// cross it: callers get false or an empty map and the error is logged.
type Service struct {
	store  storage.Store
	broker *events.Broker
}

// Option configures a Service
type Option func(*Service)

// WithBroker publishes EventFlagsChanged after every successful write
func WithBroker(b *events.Broker) Option {
	return func(s *Service) { s.broker = b }
}

// NewService wraps store
func NewService(store storage.Store, opts ...Option) *Service {
	s := &Service{store: store}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetProperties returns the values of namespace, limited to keys when given.
// The result is never nil.
func (s *Service) GetProperties(namespace string, keys ...string) map[string]string {
	timer := metrics.NewTimer()
	values, err := s.store.GetValues(namespace, keys...)
	timer.ObserveDurationVec(metrics.StoreOperationDuration, "get_values")
	if err != nil {
		s.fail("get_values", namespace, err)
		return map[string]string{}
	}
	return values
}

// SetProperties upserts every pair atomically. An empty map succeeds
// without touching the store.
func (s *Service) SetProperties(namespace string, values map[string]string) bool {
	if len(values) == 0 {
		return true
	}
	if namespace == "" {
		s.fail("set_values", namespace, errEmptyNamespace)
		return false
	}

	timer := metrics.NewTimer()
	err := s.store.SetValues(namespace, values)
	timer.ObserveDurationVec(metrics.StoreOperationDuration, "set_values")
	if err != nil {
		s.fail("set_values", namespace, err)
		return false
	}

	s.notify(namespace, keysOf(values))
	return true
}

// SetProperty sets a single value. makeDefault is accepted for callers
// that distinguish default values; the store keeps one value per key so it
// has no effect.
func (s *Service) SetProperty(namespace, key, value string, makeDefault bool) bool {
	_ = makeDefault
	return s.SetProperties(namespace, map[string]string{key: value})
}

// DeleteProperty removes one value and reports whether it existed
func (s *Service) DeleteProperty(namespace, key string) bool {
	timer := metrics.NewTimer()
	deleted, err := s.store.DeleteValue(namespace, key)
	timer.ObserveDurationVec(metrics.StoreOperationDuration, "delete_value")
	if err != nil {
		s.fail("delete_value", namespace, err)
		return false
	}
	if deleted {
		s.notify(namespace, []string{key})
	}
	return deleted
}

// Namespaces lists every namespace holding a value
func (s *Service) Namespaces() []string {
	timer := metrics.NewTimer()
	namespaces, err := s.store.ListNamespaces()
	timer.ObserveDurationVec(metrics.StoreOperationDuration, "list_namespaces")
	if err != nil {
		s.fail("list_namespaces", "", err)
		return nil
	}
	return namespaces
}

func (s *Service) fail(op, namespace string, err error) {
	metrics.StoreErrorsTotal.WithLabelValues(op).Inc()
	logger := log.WithNamespace(namespace)
	logger.Error().
		Err(err).
		Str("component", "deviceconfig").
		Str("op", op).
		Msg("Store operation failed")
}

func (s *Service) notify(namespace string, keys []string) {
	if s.broker == nil {
		return
	}
	s.broker.Publish(events.NewEvent(events.EventFlagsChanged, "properties changed", map[string]string{
		"namespace": namespace,
		"keys":      strings.Join(keys, ","),
	}))
}

func keysOf(values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
