// Package metricscell is the collection module owning the global
// Metrics singleton cell (spec.md §3.2, §4.8).
package metricscell

import (
	"github.com/coldkeep/vaultengine/internal/container"
	"github.com/coldkeep/vaultengine/internal/region"
	"github.com/coldkeep/vaultengine/internal/types"
	"github.com/coldkeep/vaultengine/internal/vaulterr"
)

// Store is a thin typed API over the MetricsCell region.
type Store struct {
	cell container.Cell
}

func New() Store {
	return Store{cell: container.NewCell(region.MetricsCell)}
}

// GetTx returns the current Metrics snapshot (zero value if never set).
func (s Store) GetTx(tx *region.Tx) (types.Metrics, error) {
	var m types.Metrics
	_, err := s.cell.GetTx(tx, &m)
	if err != nil {
		return types.Metrics{}, vaulterr.Wrap(vaulterr.CodeStorageError, "get metrics", err)
	}
	return m, nil
}

// UpdateTx performs a read-modify-write of the metrics cell (spec.md
// §4.8's update_metrics).
func (s Store) UpdateTx(tx *region.Tx, fn func(*types.Metrics)) error {
	m, err := s.GetTx(tx)
	if err != nil {
		return err
	}
	fn(&m)
	if err := s.cell.SetTx(tx, &m); err != nil {
		return vaulterr.Wrap(vaulterr.CodeStorageError, "update metrics", err)
	}
	return nil
}
