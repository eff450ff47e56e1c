// Package engine is the construction point that wires the region store,
// every collection module, and the Lifecycle Coordinators into one
// running instance. It exists to break the import cycle between
// pkg/vault and pkg/payment: both concrete coordinators are built here
// and handed to each other through the narrow interfaces each package
// declares (vault.PaymentInitiator, payment.VaultApplier).
package engine

import (
	"github.com/coldkeep/vaultengine/internal/ledger"
	"github.com/coldkeep/vaultengine/internal/principal"
	"github.com/coldkeep/vaultengine/internal/ratelimit"
	"github.com/coldkeep/vaultengine/internal/region"
	"github.com/coldkeep/vaultengine/internal/types"
	"github.com/coldkeep/vaultengine/pkg/config"
	"github.com/coldkeep/vaultengine/pkg/content"
	"github.com/coldkeep/vaultengine/pkg/invite"
	"github.com/coldkeep/vaultengine/pkg/log"
	"github.com/coldkeep/vaultengine/pkg/maintenance"
	"github.com/coldkeep/vaultengine/pkg/metrics"
	"github.com/coldkeep/vaultengine/pkg/payment"
	"github.com/coldkeep/vaultengine/pkg/storage/cursor"
	"github.com/coldkeep/vaultengine/pkg/storage/metricscell"
	"github.com/coldkeep/vaultengine/pkg/storage/sysconfig"
	"github.com/coldkeep/vaultengine/pkg/upload"
	"github.com/coldkeep/vaultengine/pkg/vault"
)

// Engine is the fully-wired process: one region.Store plus one instance
// of every Lifecycle Coordinator named in spec.md §4.
type Engine struct {
	Store *region.Store

	Vault       *vault.Coordinator
	Payment     *payment.Coordinator
	Invite      *invite.Coordinator
	Upload      *upload.Coordinator
	Content     *content.Coordinator
	Maintenance *maintenance.Engine

	Config      sysconfig.Store
	Cursor      cursor.Store
	MetricsCell metricscell.Store

	WriteBuckets    *ratelimit.Buckets
	DownloadBuckets *ratelimit.Buckets
}

// Open opens the backing store at dataDir and wires every coordinator.
// enginePrincipal is the engine's own receiving account for payment
// subaccount derivation (spec.md §4.2, GLOSSARY).
func Open(dataDir string, enginePrincipal principal.Principal, ledgerClient ledger.Client, cfg config.File) (*Engine, error) {
	store, err := region.Open(dataDir)
	if err != nil {
		return nil, err
	}

	vaultCoord := vault.New(nil)
	paymentCoord := payment.New(enginePrincipal, vaultCoord, ledgerClient)
	vaultCoord.Payments = paymentCoord

	e := &Engine{
		Store:       store,
		Vault:       vaultCoord,
		Payment:     paymentCoord,
		Invite:      invite.New(),
		Upload:      upload.New(),
		Content:     content.New(),
		Maintenance: maintenance.New(vaultCoord),
		Config:      sysconfig.New(),
		Cursor:      cursor.New(),
		MetricsCell: metricscell.New(),
		WriteBuckets: ratelimit.New(ratelimit.Config{
			Burst:           cfg.RateLimit.BucketSize,
			RefillPerSecond: cfg.RateLimit.RefillPerSecond,
			IdleEvictAfter:  cfg.RateLimit.IdleEvictAfter,
		}),
		DownloadBuckets: ratelimit.New(ratelimit.Config{
			Burst:           cfg.RateLimit.BucketSize,
			RefillPerSecond: cfg.RateLimit.RefillPerSecond,
			IdleEvictAfter:  cfg.RateLimit.IdleEvictAfter,
		}),
	}
	e.Maintenance.WriteBuckets = e.WriteBuckets
	e.Maintenance.DownloadBuckets = e.DownloadBuckets
	e.Maintenance.SetAuditConfig(cfg.Audit.CapEntries, cfg.Audit.KeepLastN)

	vaultCoord.WriteBuckets = e.WriteBuckets
	paymentCoord.WriteBuckets = e.WriteBuckets
	e.Invite.WriteBuckets = e.WriteBuckets
	e.Upload.WriteBuckets = e.WriteBuckets
	e.Content.WriteBuckets = e.WriteBuckets

	collector := metrics.NewCollector(e.Snapshot, cfg.Metrics.PollInterval)
	collector.Start()

	log.WithComponent("engine").Info().Str("data_dir", dataDir).Msg("engine opened")
	return e, nil
}

// Snapshot implements metrics.Snapshot by reading the persisted metrics
// cell (spec.md §3.2, §4.8).
func (e *Engine) Snapshot() (types.Metrics, error) {
	var m types.Metrics
	err := e.Store.View(func(tx *region.Tx) error {
		var err error
		m, err = e.MetricsCell.GetTx(tx)
		return err
	})
	return m, err
}

// Close releases the backing store.
func (e *Engine) Close() error {
	return e.Store.Close()
}
