package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/coldkeep/vaultengine/internal/ledger"
	"github.com/coldkeep/vaultengine/internal/principal"
	"github.com/coldkeep/vaultengine/pkg/engine"
	"github.com/coldkeep/vaultengine/pkg/log"
	"github.com/coldkeep/vaultengine/pkg/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the vault engine and its metrics/health HTTP endpoints",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("engine-principal", "", "Hex-encoded Principal naming this engine's receiving account")
	serveCmd.Flags().String("ledger-addr", "", "Base URL of the external ledger-inspection service")
	_ = serveCmd.MarkFlagRequired("engine-principal")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	enginePrincipalHex, _ := cmd.Flags().GetString("engine-principal")
	enginePrincipal, err := principal.Parse(enginePrincipalHex)
	if err != nil {
		return err
	}
	ledgerAddr, _ := cmd.Flags().GetString("ledger-addr")
	ledgerClient := ledger.Client(ledger.NewHTTPClient(ledgerAddr))

	e, err := engine.Open(cfg.DataDir, enginePrincipal, ledgerClient, cfg)
	if err != nil {
		return err
	}
	defer e.Close()

	metrics.RegisterComponent("region", true, "")
	metrics.RegisterComponent("scheduler", true, "")

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", metrics.HealthHandler())
	mux.HandleFunc("/ready", metrics.ReadyHandler())
	mux.HandleFunc("/live", metrics.LivenessHandler())

	srv := &http.Server{Addr: cfg.Metrics.ListenAddr, Handler: mux}
	go func() {
		log.Info("starting metrics/health server on " + cfg.Metrics.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("metrics server exited: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
