package metrics

import (
	"time"

	"github.com/coldkeep/vaultengine/internal/types"
)

// Snapshot returns the current engine Metrics cell (spec.md §3.2,
// §4.8). Supplied by the maintenance engine or the vault coordinator;
// Collector never touches storage directly so pkg/metrics stays free
// of a region/container import.
type Snapshot func() (types.Metrics, error)

// Collector periodically pushes the engine's Metrics cell into the
// Prometheus gauges registered in this package.
type Collector struct {
	snapshot Snapshot
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a new metrics collector polling snapshot every
// interval.
func NewCollector(snapshot Snapshot, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		snapshot: snapshot,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics in the background.
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	m, err := c.snapshot()
	if err != nil {
		return
	}

	// Label values match internal/types.VaultStatus strings so this
	// gauge can be read consistently whether set here or from a direct
	// Inc/Dec in pkg/vault's status-transition path.
	VaultsTotal.WithLabelValues("ACTIVE").Set(float64(m.ActiveVaults))
	VaultsTotal.WithLabelValues("UNLOCKABLE").Set(float64(m.UnlockedVaults))
	VaultsTotal.WithLabelValues("NEED_SETUP").Set(float64(m.NeedSetupVaults))
	VaultsTotal.WithLabelValues("EXPIRED").Set(float64(m.ExpiredVaults))

	StorageUsedBytes.Set(float64(m.StorageUsedBytes))
}
