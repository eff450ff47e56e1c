// Package invite implements the Invitation & Membership Coordinator
// (spec.md §4.3): invite issuance, claim, revocation, and the Shamir
// share-index allocator.
package invite

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/coldkeep/vaultengine/internal/principal"
	"github.com/coldkeep/vaultengine/internal/ratelimit"
	"github.com/coldkeep/vaultengine/internal/region"
	"github.com/coldkeep/vaultengine/internal/types"
	"github.com/coldkeep/vaultengine/internal/vaulterr"
	"github.com/coldkeep/vaultengine/pkg/log"
	"github.com/coldkeep/vaultengine/pkg/metrics"
	"github.com/coldkeep/vaultengine/pkg/storage/invites"
	"github.com/coldkeep/vaultengine/pkg/storage/members"
	"github.com/coldkeep/vaultengine/pkg/storage/vaults"
)

const inviteTTL = 24 * time.Hour

// maxShamirIndex is the top of the 1..=255 share-index range (spec.md
// §3.3, GLOSSARY).
const maxShamirIndex = 255

// Coordinator is the Invitation & Membership Coordinator.
type Coordinator struct {
	Vaults  vaults.Store
	Members members.Store
	Invites invites.Store

	// WriteBuckets gates generate_invite/claim_invite/revoke_invite, one
	// token bucket per caller (spec.md §5).
	WriteBuckets *ratelimit.Buckets

	log zerolog.Logger
}

func New() *Coordinator {
	return &Coordinator{
		Vaults:  vaults.New(),
		Members: members.New(),
		Invites: invites.New(),
		log:     log.WithComponent("invite"),
	}
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

// invitableStatuses are the vault states generate_invite permits
// (spec.md §4.3).
var invitableStatuses = map[types.VaultStatus]bool{
	types.StatusNeedSetup:     true,
	types.StatusSetupComplete: true,
	types.StatusActive:        true,
}

// nextShamirIndex returns the smallest value in 1..=255 not currently
// used by an active member of role in vaultID (spec.md §4.3's tie-break).
func nextShamirIndex(used map[uint8]bool) (uint8, error) {
	for i := 1; i <= maxShamirIndex; i++ {
		if !used[uint8(i)] {
			return uint8(i), nil
		}
	}
	return 0, vaulterr.New(vaulterr.CodeShareIndexExhausted, "no free shamir index in this vault/role")
}

// GenerateInviteTx is owner-only and requires the vault be in a status
// that permits invites (spec.md §4.3).
func (c *Coordinator) GenerateInviteTx(tx *region.Tx, vaultID, caller principal.Principal, role types.Role) (principal.Principal, error) {
	if err := c.checkWriteRate(caller, "generate_invite"); err != nil {
		return principal.Principal{}, err
	}
	v, ok, err := c.Vaults.GetTx(tx, vaultID)
	if err != nil {
		return principal.Principal{}, err
	}
	if !ok {
		return principal.Principal{}, vaulterr.New(vaulterr.CodeVaultNotFound, "vault not found")
	}
	if v.Owner != caller {
		return principal.Principal{}, vaulterr.New(vaulterr.CodeOwnerGuardFailed, "caller is not the vault owner")
	}
	if !invitableStatuses[v.Status] {
		return principal.Principal{}, vaulterr.New(vaulterr.CodeInvalidState, "vault status does not permit invites")
	}

	used, err := c.Members.UsedShamirIndices(tx, vaultID, role)
	if err != nil {
		return principal.Principal{}, err
	}
	shamirIndex, err := nextShamirIndex(used)
	if err != nil {
		return principal.Principal{}, err
	}

	internalID, external, err := c.Invites.AllocateTx(tx)
	if err != nil {
		return principal.Principal{}, err
	}

	now := time.Now()
	token := &types.InviteToken{
		InternalID:  internalID,
		ExternalID:  external,
		VaultID:     vaultID,
		Role:        role,
		Status:      types.InvitePending,
		ShamirIndex: shamirIndex,
		CreatedAt:   now,
		ExpiresAt:   now.Add(inviteTTL),
	}
	if err := c.Invites.InsertTx(tx, token); err != nil {
		return principal.Principal{}, err
	}

	metrics.InvitesIssuedTotal.Inc()
	c.log.Info().Str("vault_id", vaultID.String()).Str("role", string(role)).Msg("invite generated")
	return external, nil
}

// ClaimInviteTx resolves the external token, validates it is Pending and
// unexpired, creates the resulting VaultMember, and flips the token to
// Claimed (spec.md §4.3).
func (c *Coordinator) ClaimInviteTx(tx *region.Tx, external, claimer principal.Principal) (*types.VaultMember, error) {
	if err := c.checkWriteRate(claimer, "claim_invite"); err != nil {
		return nil, err
	}
	token, ok, err := c.Invites.ResolveTx(tx, external)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, vaulterr.New(vaulterr.CodeTokenInvalid, "invite token not found")
	}
	if token.Status == types.InviteExpired || (token.Status == types.InvitePending && time.Now().After(token.ExpiresAt)) {
		if token.Status != types.InviteExpired {
			token.Status = types.InviteExpired
			if err := c.Invites.PutTx(tx, token); err != nil {
				return nil, err
			}
		}
		return nil, vaulterr.New(vaulterr.CodeTokenExpired, "invite token has expired")
	}
	if token.Status != types.InvitePending {
		return nil, vaulterr.New(vaulterr.CodeTokenExpired, "invite token is not pending")
	}

	if existing, ok, err := c.Members.GetTx(tx, token.VaultID, claimer); err != nil {
		return nil, err
	} else if ok && existing != nil {
		return nil, vaulterr.New(vaulterr.CodeAlreadyClaimed, "caller already has a membership in this vault")
	}

	now := time.Now()
	member := &types.VaultMember{
		VaultID:     token.VaultID,
		Member:      claimer,
		Role:        token.Role,
		Status:      types.MemberActive,
		ShamirIndex: token.ShamirIndex,
		ClaimedAt:   now,
	}
	if err := c.Members.PutTx(tx, member); err != nil {
		return nil, err
	}

	token.Status = types.InviteClaimed
	token.ClaimedAt = now
	token.ClaimedBy = claimer
	if err := c.Invites.PutTx(tx, token); err != nil {
		return nil, err
	}

	if token.Role == types.RoleHeir {
		if v, ok, err := c.Vaults.GetTx(tx, token.VaultID); err == nil && ok && v.Status == types.StatusNeedSetup {
			v.Status = types.StatusSetupComplete
			v.UpdatedAt = now
			_ = c.Vaults.PutTx(tx, v)
			metrics.VaultsTotal.WithLabelValues(string(types.StatusNeedSetup)).Dec()
			metrics.VaultsTotal.WithLabelValues(string(types.StatusSetupComplete)).Inc()
		}
	}

	metrics.InvitesClaimedTotal.Inc()
	c.log.Info().Str("vault_id", token.VaultID.String()).Str("role", string(token.Role)).Msg("invite claimed")
	return member, nil
}

// RevokeInviteTx is owner-only and only from Pending (spec.md §4.3).
func (c *Coordinator) RevokeInviteTx(tx *region.Tx, external, caller principal.Principal) error {
	if err := c.checkWriteRate(caller, "revoke_invite"); err != nil {
		return err
	}
	token, ok, err := c.Invites.ResolveTx(tx, external)
	if err != nil {
		return err
	}
	if !ok {
		return vaulterr.New(vaulterr.CodeTokenInvalid, "invite token not found")
	}
	v, ok, err := c.Vaults.GetTx(tx, token.VaultID)
	if err != nil {
		return err
	}
	if !ok || v.Owner != caller {
		return vaulterr.New(vaulterr.CodeOwnerGuardFailed, "caller is not the vault owner")
	}
	if token.Status != types.InvitePending {
		return vaulterr.New(vaulterr.CodeInvalidState, "invite is not pending")
	}
	token.Status = types.InviteRevoked
	return c.Invites.PutTx(tx, token)
}
