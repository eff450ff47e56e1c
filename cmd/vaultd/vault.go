package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coldkeep/vaultengine/internal/ledger"
	"github.com/coldkeep/vaultengine/internal/principal"
	"github.com/coldkeep/vaultengine/internal/region"
	"github.com/coldkeep/vaultengine/internal/types"
	"github.com/coldkeep/vaultengine/internal/vaulterr"
	"github.com/coldkeep/vaultengine/pkg/engine"
)

var vaultCmd = &cobra.Command{
	Use:   "vault",
	Short: "Inspect vaults (admin query surface)",
}

var vaultGetCmd = &cobra.Command{
	Use:   "get <vault-id>",
	Short: "Print one vault's config (spec.md §6.1 get_vault)",
	Args:  cobra.ExactArgs(1),
	RunE:  runVaultGet,
}

var vaultListCmd = &cobra.Command{
	Use:   "list",
	Short: "List vaults with pagination (spec.md §6.1 list_vaults)",
	RunE:  runVaultList,
}

func init() {
	vaultListCmd.Flags().Int("offset", 0, "Pagination offset")
	vaultListCmd.Flags().Int("limit", 50, "Pagination limit (0 = unbounded)")
	vaultCmd.AddCommand(vaultGetCmd)
	vaultCmd.AddCommand(vaultListCmd)
}

func openReadOnlyEngine(cmd *cobra.Command) (*engine.Engine, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return engine.Open(cfg.DataDir, principal.Principal{}, ledger.Client(nil), cfg)
}

func runVaultGet(cmd *cobra.Command, args []string) error {
	vaultID, err := principal.Parse(args[0])
	if err != nil {
		return err
	}
	e, err := openReadOnlyEngine(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	var found bool
	err = e.Store.View(func(tx *region.Tx) error {
		v, ok, err := e.Vault.Vaults.GetTx(tx, vaultID)
		if err != nil {
			return err
		}
		found = ok
		if ok {
			fmt.Printf("%+v\n", *v)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !found {
		return vaulterr.New(vaulterr.CodeVaultNotFound, "vault not found")
	}
	return nil
}

func runVaultList(cmd *cobra.Command, args []string) error {
	offset, _ := cmd.Flags().GetInt("offset")
	limit, _ := cmd.Flags().GetInt("limit")

	e, err := openReadOnlyEngine(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	return e.Store.View(func(tx *region.Tx) error {
		return e.Vault.Vaults.ListTx(tx, offset, limit, func(v *types.VaultConfig) error {
			fmt.Printf("%s\t%s\t%s\t%d/%d bytes\n", v.VaultID.String(), v.Plan, v.Status, v.BytesUsed, v.StorageQuotaBytes)
			return nil
		})
	})
}
