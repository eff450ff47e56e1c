package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/coldkeep/vaultengine/internal/principal"
	"github.com/coldkeep/vaultengine/internal/region"
	"github.com/coldkeep/vaultengine/internal/types"
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Engine-wide administration (spec.md §4.9)",
}

var adminInitConfigCmd = &cobra.Command{
	Use:   "init-config",
	Short: "Initialize GlobalConfig exactly once (spec.md §4.9 init_config)",
	RunE:  runAdminInitConfig,
}

var adminMetricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Print the persisted metrics snapshot (spec.md §6.1 get_metrics)",
	RunE:  runAdminMetrics,
}

func init() {
	adminInitConfigCmd.Flags().String("admin-principal", "", "Hex-encoded Principal of the engine admin")
	adminInitConfigCmd.Flags().String("scheduler-principal", "", "Hex-encoded Principal of the maintenance scheduler")
	adminInitConfigCmd.Flags().Uint64("min-resource-threshold", 0, "Minimum free-resource threshold below which writes are rejected")
	_ = adminInitConfigCmd.MarkFlagRequired("admin-principal")
	_ = adminInitConfigCmd.MarkFlagRequired("scheduler-principal")

	adminCmd.AddCommand(adminInitConfigCmd)
	adminCmd.AddCommand(adminMetricsCmd)
}

func runAdminInitConfig(cmd *cobra.Command, args []string) error {
	adminHex, _ := cmd.Flags().GetString("admin-principal")
	schedulerHex, _ := cmd.Flags().GetString("scheduler-principal")
	minResource, _ := cmd.Flags().GetUint64("min-resource-threshold")

	admin, err := principal.Parse(adminHex)
	if err != nil {
		return err
	}
	scheduler, err := principal.Parse(schedulerHex)
	if err != nil {
		return err
	}

	e, err := openReadOnlyEngine(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	cfg := &types.GlobalConfig{
		Admin:                admin,
		Scheduler:            scheduler,
		MinResourceThreshold: minResource,
		InitializedAt:        time.Now(),
	}
	err = e.Store.Update(func(tx *region.Tx) error {
		return e.Config.InitTx(tx, cfg)
	})
	if err != nil {
		return err
	}
	fmt.Println("global config initialized")
	return nil
}

func runAdminMetrics(cmd *cobra.Command, args []string) error {
	e, err := openReadOnlyEngine(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	m, err := e.Snapshot()
	if err != nil {
		return err
	}
	fmt.Printf("%+v\n", m)
	return nil
}
