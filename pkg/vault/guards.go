package vault

import (
	"github.com/coldkeep/vaultengine/internal/principal"
	"github.com/coldkeep/vaultengine/internal/region"
	"github.com/coldkeep/vaultengine/internal/types"
	"github.com/coldkeep/vaultengine/internal/vaulterr"
	"github.com/coldkeep/vaultengine/pkg/storage/members"
	"github.com/coldkeep/vaultengine/pkg/storage/sysconfig"
)

// ownerGuard accepts only VaultConfig.Owner (spec.md §4.1).
func ownerGuard(v *types.VaultConfig, caller principal.Principal) error {
	if v.Owner != caller {
		return vaulterr.New(vaulterr.CodeOwnerGuardFailed, "caller is not the vault owner")
	}
	return nil
}

// ownerOrHeirGuard accepts the owner or any Active heir member.
func ownerOrHeirGuard(tx *region.Tx, memberStore members.Store, v *types.VaultConfig, caller principal.Principal) error {
	if v.Owner == caller {
		return nil
	}
	m, ok, err := memberStore.GetTx(tx, v.VaultID, caller)
	if err != nil {
		return err
	}
	if ok && m.Role == types.RoleHeir && m.Status == types.MemberActive {
		return nil
	}
	return vaulterr.New(vaulterr.CodeOwnerGuardFailed, "caller is neither owner nor an active heir")
}

// memberGuard accepts any member of the vault in any status.
func memberGuard(tx *region.Tx, memberStore members.Store, v *types.VaultConfig, caller principal.Principal) error {
	_, ok, err := memberStore.GetTx(tx, v.VaultID, caller)
	if err != nil {
		return err
	}
	if !ok {
		return vaulterr.New(vaulterr.CodeMemberGuardFailed, "caller is not a member of this vault")
	}
	return nil
}

// roleGuard accepts only a Verified member of the expected role.
func roleGuard(tx *region.Tx, memberStore members.Store, v *types.VaultConfig, caller principal.Principal, expected types.Role) error {
	m, ok, err := memberStore.GetTx(tx, v.VaultID, caller)
	if err != nil {
		return err
	}
	if !ok || m.Role != expected || m.Status != types.MemberVerified {
		return vaulterr.New(vaulterr.CodeMemberGuardFailed, "caller is not a verified member of the expected role")
	}
	return nil
}

// adminGuard accepts only the global admin principal.
func adminGuard(tx *region.Tx, cfgStore sysconfig.Store, caller principal.Principal) error {
	cfg, ok, err := cfgStore.GetTx(tx)
	if err != nil {
		return err
	}
	if !ok || cfg.Admin != caller {
		return vaulterr.New(vaulterr.CodeAdminGuardFailed, "caller is not the admin principal")
	}
	return nil
}

// schedulerGuard accepts only the global scheduler principal.
func schedulerGuard(tx *region.Tx, cfgStore sysconfig.Store, caller principal.Principal) error {
	cfg, ok, err := cfgStore.GetTx(tx)
	if err != nil {
		return err
	}
	if !ok || cfg.Scheduler != caller {
		return vaulterr.New(vaulterr.CodeSchedulerGuardFailed, "caller is not the scheduler principal")
	}
	return nil
}
