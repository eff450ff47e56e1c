package vault

import "github.com/coldkeep/vaultengine/internal/types"

// transitions is the permitted-edges table from spec.md §4.1. Any edge
// not listed here fails with InvalidStateTransition.
var transitions = map[types.VaultStatus]map[types.VaultStatus]bool{
	types.StatusDraft:        {types.StatusNeedSetup: true},
	types.StatusNeedSetup:    {types.StatusSetupComplete: true},
	types.StatusSetupComplete: {types.StatusActive: true},
	types.StatusActive: {
		types.StatusGraceMaster: true,
		types.StatusUnlockable:  true,
	},
	types.StatusGraceMaster: {types.StatusGraceHeir: true},
	types.StatusGraceHeir: {
		types.StatusUnlockable: true,
		types.StatusDeleted:    true,
	},
	types.StatusUnlockable: {types.StatusExpired: true},
	types.StatusExpired:    {types.StatusDeleted: true},
}

// canTransition reports whether from->to is a permitted edge.
func canTransition(from, to types.VaultStatus) bool {
	edges, ok := transitions[from]
	if !ok {
		return false
	}
	return edges[to]
}
