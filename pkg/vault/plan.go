package vault

import (
	"time"

	"github.com/coldkeep/vaultengine/internal/types"
)

// BillingPeriod is the fixed term a subscription payment covers, fixing
// VaultConfig.ExpiresAt at creation and at each plan change (spec.md
// §4.1's update_vault/finalize_plan_change, §9's prorate open question).
// All plan tiers share the same term; only price and quota vary by tier.
const BillingPeriod = 365 * 24 * time.Hour

// PlanInfo describes one subscription tier's storage quota and price.
// Prices are in ledger base units, matching PaymentSession.Amount.
type PlanInfo struct {
	QuotaBytes     int64
	PriceBaseUnits uint64
}

// plans is the fixed tier table. Adding a tier is additive; changing an
// existing tier's price does not retroactively alter vaults already on
// that plan.
var plans = map[types.PlanTier]PlanInfo{
	types.PlanStarter: {QuotaBytes: 5 << 30, PriceBaseUnits: 600_000_000},
	types.PlanFamily:  {QuotaBytes: 25 << 30, PriceBaseUnits: 1_500_000_000},
	types.PlanLegacy:  {QuotaBytes: 100 << 30, PriceBaseUnits: 4_000_000_000},
	types.PlanEstate:  {QuotaBytes: 500 << 30, PriceBaseUnits: 12_000_000_000},
}

// PlanQuota returns the storage quota in bytes for a tier.
func PlanQuota(tier types.PlanTier) int64 {
	return plans[tier].QuotaBytes
}

// PlanPrice returns the base-unit price of a tier.
func PlanPrice(tier types.PlanTier) uint64 {
	return plans[tier].PriceBaseUnits
}
