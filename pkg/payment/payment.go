// Package payment implements the Payment & Billing Coordinator (spec.md
// §4.2). Sessions are held in volatile process memory only — per
// spec.md §5, a payment session's suspension window (between init and
// verify) relies on no held lock, so an in-memory map keyed by a
// random google/uuid.UUID is sufficient; unlike every persisted
// collection, PaymentSession never needs a secondary index resolving an
// external Principal back to an internal key, since it never crosses
// into the region store.
package payment

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/coldkeep/vaultengine/internal/ledger"
	"github.com/coldkeep/vaultengine/internal/principal"
	"github.com/coldkeep/vaultengine/internal/ratelimit"
	"github.com/coldkeep/vaultengine/internal/region"
	"github.com/coldkeep/vaultengine/internal/types"
	"github.com/coldkeep/vaultengine/internal/vaulterr"
	"github.com/coldkeep/vaultengine/pkg/log"
	"github.com/coldkeep/vaultengine/pkg/metrics"
	"github.com/coldkeep/vaultengine/pkg/storage/billing"
)

// SessionState is one state of a PaymentSession's lifecycle (spec.md
// §4.2).
type SessionState string

const (
	SessionIssued    SessionState = "Issued"
	SessionConfirmed SessionState = "Confirmed"
	SessionClosed    SessionState = "Closed"
	SessionExpired   SessionState = "Expired"
)

// Purpose names what a verified session causes the engine to do.
type Purpose string

const (
	PurposeInitialVaultCreation Purpose = "InitialVaultCreation"
	PurposePlanUpgrade          Purpose = "PlanUpgrade"
)

// Session is the volatile record spec.md §4.2 describes.
type Session struct {
	ID              uuid.UUID
	VaultID         principal.Principal // zero for InitialVaultCreation until created
	Payer           principal.Principal
	Amount          uint64
	Subaccount      []byte
	ReceiveAddress  string
	Purpose         Purpose
	NewPlan         types.PlanTier // set iff Purpose == PurposePlanUpgrade
	State           SessionState
	TxHash          string
	CreatedAt       time.Time
	ExpiresAt       time.Time
}

const sessionTTL = 30 * time.Minute

// VaultApplier is the narrow view of the Vault Lifecycle Coordinator
// that verify_session dispatches into post-confirmation (spec.md
// §4.2). Defined here, mirroring vault.PaymentInitiator, to break the
// two-way call graph between these packages without either importing
// the other.
type VaultApplier interface {
	CreateVaultTx(tx *region.Tx, owner principal.Principal, plan types.PlanTier, heirThreshold, witnessThreshold uint32) (principal.Principal, error)
	FinalizePlanChangeTx(tx *region.Tx, vaultID principal.Principal, newPlan types.PlanTier) error
}

// Coordinator is the Payment & Billing Coordinator.
type Coordinator struct {
	enginePrincipal principal.Principal
	vaults          VaultApplier
	billing         billing.Store
	ledger          ledger.Client

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session

	// WriteBuckets gates init_session, one token bucket per caller
	// (spec.md §5).
	WriteBuckets *ratelimit.Buckets

	log zerolog.Logger
}

func (c *Coordinator) checkWriteRate(caller principal.Principal, operation string) error {
	if c.WriteBuckets == nil {
		return nil
	}
	if !c.WriteBuckets.Allow(caller) {
		metrics.RateLimitedTotal.WithLabelValues(operation).Inc()
		return vaulterr.New(vaulterr.CodeRateLimitExceeded, "write rate limit exceeded for this caller")
	}
	return nil
}

// New constructs a Coordinator. enginePrincipal names the engine's own
// receiving account, against which a session's subaccount is qualified
// (spec.md §4.2, GLOSSARY "Subaccount").
func New(enginePrincipal principal.Principal, vaults VaultApplier, ledgerClient ledger.Client) *Coordinator {
	return &Coordinator{
		enginePrincipal: enginePrincipal,
		vaults:          vaults,
		billing:         billing.New(),
		ledger:          ledgerClient,
		sessions:        make(map[uuid.UUID]*Session),
		log:             log.WithComponent("payment"),
	}
}

// InitSession derives a fresh subaccount, builds a receive address, and
// persists the session in memory (spec.md §4.2's init_session).
func (c *Coordinator) InitSession(purpose Purpose, amount uint64, payer principal.Principal, vaultID principal.Principal, newPlan types.PlanTier) (*Session, error) {
	if err := c.checkWriteRate(payer, "init_payment"); err != nil {
		return nil, err
	}
	if amount == 0 {
		return nil, vaulterr.New(vaulterr.CodeInvalidInput, "amount must be nonzero")
	}
	sub := make([]byte, 32)
	if _, err := rand.Read(sub); err != nil {
		return nil, vaulterr.Wrap(vaulterr.CodeInternalError, "derive subaccount", err)
	}

	now := time.Now()
	s := &Session{
		ID:             uuid.New(),
		VaultID:        vaultID,
		Payer:          payer,
		Amount:         amount,
		Subaccount:     sub,
		ReceiveAddress: receiveAddress(c.enginePrincipal, sub),
		Purpose:        purpose,
		NewPlan:        newPlan,
		State:          SessionIssued,
		CreatedAt:      now,
		ExpiresAt:      now.Add(sessionTTL),
	}

	c.mu.Lock()
	c.sessions[s.ID] = s
	c.mu.Unlock()

	c.log.Info().Str("session_id", s.ID.String()).Str("purpose", string(purpose)).Msg("payment session opened")
	return s, nil
}

// InitUpgradeSessionTx implements vault.PaymentInitiator for the
// update_vault upgrade path (spec.md §4.1). It does not touch tx itself
// — session state is volatile — but accepts it to satisfy the interface
// vault.Coordinator calls through from inside its own transaction.
func (c *Coordinator) InitUpgradeSessionTx(_ *region.Tx, vaultID, payer principal.Principal, newPlan types.PlanTier, amount uint64) (principal.Principal, string, time.Time, error) {
	s, err := c.InitSession(PurposePlanUpgrade, amount, payer, vaultID, newPlan)
	if err != nil {
		return principal.Principal{}, "", time.Time{}, err
	}
	return principal.Principal{}, s.ReceiveAddress, s.ExpiresAt, nil
}

func receiveAddress(engine principal.Principal, subaccount []byte) string {
	return engine.String() + ":" + hex.EncodeToString(subaccount)
}

// VerifySession queries the external ledger and, on a matching
// transaction, transitions the session to Confirmed and dispatches the
// post-verification effect inside a single region transaction (spec.md
// §4.2, §5). Double-verification of an already-Confirmed session is
// idempotent.
func (c *Coordinator) VerifySession(ctx context.Context, store *region.Store, sessionID uuid.UUID, blockHint *uint64) (txHash string, err error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.PaymentVerifyDuration)

	c.mu.Lock()
	s, ok := c.sessions[sessionID]
	c.mu.Unlock()
	if !ok {
		return "", vaulterr.New(vaulterr.CodeTokenInvalid, "unknown session")
	}

	if s.State == SessionConfirmed {
		metrics.PaymentVerificationsTotal.WithLabelValues("idempotent").Inc()
		return s.TxHash, nil
	}
	if s.State == SessionClosed {
		return "", vaulterr.New(vaulterr.CodeSessionClosed, "session is closed")
	}
	if time.Now().After(s.ExpiresAt) {
		c.mu.Lock()
		s.State = SessionExpired
		c.mu.Unlock()
		metrics.PaymentVerificationsTotal.WithLabelValues("timeout").Inc()
		return "", vaulterr.New(vaulterr.CodePaymentTimeout, "session expired before verification")
	}

	tx, err := c.findMatch(ctx, s, blockHint)
	if err != nil || tx == nil {
		metrics.PaymentVerificationsTotal.WithLabelValues("pending").Inc()
		return "", vaulterr.New(vaulterr.CodePaymentPending, "no matching ledger transaction yet")
	}
	if tx.AmountBaseUnits < s.Amount {
		metrics.PaymentVerificationsTotal.WithLabelValues("amount_mismatch").Inc()
		return "", vaulterr.New(vaulterr.CodePaymentAmountMismatch, "underpayment")
	}

	var vaultID principal.Principal
	err = store.Update(func(rtx *region.Tx) error {
		switch s.Purpose {
		case PurposeInitialVaultCreation:
			created, err := c.vaults.CreateVaultTx(rtx, s.Payer, types.PlanStarter, 1, 1)
			if err != nil {
				return err
			}
			vaultID = created
		case PurposePlanUpgrade:
			if err := c.vaults.FinalizePlanChangeTx(rtx, s.VaultID, s.NewPlan); err != nil {
				return err
			}
			vaultID = s.VaultID
		}

		entry := &types.BillingEntry{
			Timestamp:        time.Now(),
			VaultID:          vaultID,
			TxType:           billingTxType(s.Purpose),
			AmountBaseUnits:  s.Amount,
			LedgerTxHash:     tx.TxHash,
			RelatedPrincipal: s.Payer,
		}
		if _, err := c.billing.AppendTx(rtx, entry); err != nil {
			return err
		}
		metrics.BillingEntriesTotal.Inc()
		return nil
	})
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	s.State = SessionConfirmed
	s.TxHash = tx.TxHash
	if s.VaultID.IsZero() {
		s.VaultID = vaultID
	}
	c.mu.Unlock()

	metrics.PaymentVerificationsTotal.WithLabelValues("confirmed").Inc()
	c.log.Info().Str("session_id", s.ID.String()).Str("tx_hash", tx.TxHash).Msg("payment verified")
	return tx.TxHash, nil
}

func (c *Coordinator) findMatch(ctx context.Context, s *Session, blockHint *uint64) (*ledger.Transaction, error) {
	if blockHint != nil {
		tx, err := c.ledger.ByBlockIndex(ctx, *blockHint)
		if err != nil || tx == nil {
			return nil, err
		}
		if !matches(tx, s) {
			return nil, nil
		}
		return tx, nil
	}

	txs, err := c.ledger.BySubaccount(ctx, s.Subaccount, s.CreatedAt)
	if err != nil {
		return nil, err
	}
	for i := range txs {
		if matches(&txs[i], s) {
			return &txs[i], nil
		}
	}
	return nil, nil
}

func matches(tx *ledger.Transaction, s *Session) bool {
	if len(tx.ToSubaccount) != len(s.Subaccount) {
		return false
	}
	for i := range tx.ToSubaccount {
		if tx.ToSubaccount[i] != s.Subaccount[i] {
			return false
		}
	}
	return true
}

func billingTxType(p Purpose) types.BillingTxType {
	if p == PurposePlanUpgrade {
		return types.BillingPlanUpgrade
	}
	return types.BillingInitialVaultCreation
}

// ListBilling returns a page of the billing log (spec.md §6.1's
// list_billing admin query).
func (c *Coordinator) ListBilling(store *region.Store, offset, limit uint64) ([]types.BillingEntry, error) {
	var entries []types.BillingEntry
	err := store.View(func(tx *region.Tx) error {
		var err error
		entries, err = c.billing.ListTx(tx, offset, limit)
		return err
	})
	return entries, err
}
