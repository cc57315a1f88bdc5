package metrics

import (
	"time"

	"github.com/cuemby/flagstage/pkg/types"
)

// DefaultCollectInterval is how often the collector samples the store
const DefaultCollectInterval = 15 * time.Second

// Source is the read side of the configuration store
type Source interface {
	GetValues(namespace string, keys ...string) (map[string]string, error)
	ListNamespaces() ([]string, error)
}

// Collector periodically samples store-level gauges
type Collector struct {
	source   Source
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(source Source, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = DefaultCollectInterval
	}
	return &Collector{
		source:   source,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		// Collect immediately on start
		c.Collect()

		for {
			select {
			case <-ticker.C:
				c.Collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

// Collect samples the store once
func (c *Collector) Collect() {
	namespaces, err := c.source.ListNamespaces()
	if err != nil {
		UpdateComponent("store", false, err.Error())
		return
	}
	UpdateComponent("store", true, "")

	NamespacesTotal.Set(float64(len(namespaces)))

	staged, err := c.source.GetValues(types.NamespaceRebootStaging)
	if err != nil {
		return
	}
	StagedValuesTotal.Set(float64(len(staged)))
}
