// Package ledger declares the engine's one outbound collaborator
// (spec.md §6.3): a blocking remote call that returns transaction
// records from an external ledger. The ledger-inspection subsystem
// itself is out of scope for this repository (spec.md §1); this package
// only defines the narrow interface the payment coordinator calls
// against, so it can be exercised with a fake in tests and swapped for a
// real client by the host.
package ledger

import (
	"context"
	"time"
)

// Transaction is one entry returned by the external ledger.
type Transaction struct {
	From          []byte
	ToSubaccount  []byte
	AmountBaseUnits uint64
	Memo          string
	TxHash        string
	Timestamp     time.Time
}

// Client is the engine's view of the external ledger-inspection
// subsystem. Implementations may reach out over HTTP, gRPC, or any other
// transport; the engine only ever calls these two methods and treats any
// error or empty result as inconclusive (spec.md §6.3).
type Client interface {
	// ByBlockIndex returns the transaction recorded at the given block
	// index, if any.
	ByBlockIndex(ctx context.Context, blockIndex uint64) (*Transaction, error)

	// BySubaccount returns transactions paid to subaccount within the
	// given time window, newest first.
	BySubaccount(ctx context.Context, subaccount []byte, since time.Time) ([]Transaction, error)
}
