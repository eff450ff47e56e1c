package main

import (
	"github.com/spf13/cobra"

	"github.com/coldkeep/vaultengine/internal/ledger"
	"github.com/coldkeep/vaultengine/internal/principal"
	"github.com/coldkeep/vaultengine/internal/region"
	"github.com/coldkeep/vaultengine/pkg/engine"
	"github.com/coldkeep/vaultengine/pkg/log"
)

var maintainCmd = &cobra.Command{
	Use:   "maintain",
	Short: "Run the daily_maintenance sweep once and exit",
	Long: `maintain runs the five-step maintenance sweep to completion
(spec.md §4.7): expire invites, garbage-collect stale uploads, advance
vault lifecycle, compact audit logs, recompute metrics. Intended to be
invoked by an external scheduler at least once daily.`,
	RunE: runMaintain,
}

func init() {
	maintainCmd.Flags().String("engine-principal", "", "Hex-encoded Principal naming this engine's receiving account")
	maintainCmd.Flags().String("scheduler-principal", "", "Hex-encoded Principal authorized to invoke daily_maintenance")
	_ = maintainCmd.MarkFlagRequired("engine-principal")
	_ = maintainCmd.MarkFlagRequired("scheduler-principal")
}

func runMaintain(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	enginePrincipalHex, _ := cmd.Flags().GetString("engine-principal")
	enginePrincipal, err := principal.Parse(enginePrincipalHex)
	if err != nil {
		return err
	}
	schedulerHex, _ := cmd.Flags().GetString("scheduler-principal")
	scheduler, err := principal.Parse(schedulerHex)
	if err != nil {
		return err
	}

	e, err := engine.Open(cfg.DataDir, enginePrincipal, ledger.Client(nil), cfg)
	if err != nil {
		return err
	}
	defer e.Close()

	err = e.Store.Update(func(tx *region.Tx) error {
		return e.Maintenance.RunTx(tx, scheduler)
	})
	if err != nil {
		return err
	}
	log.Info("maintenance sweep completed")
	return nil
}
