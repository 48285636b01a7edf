package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/valentindosimont/focusgate/internal/app"
)

var daemonDebug bool

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the focusgate daemon in the foreground",
	Long: `Run the background coordinator.

The daemon:
  1. Restores the persisted session and ends it if it expired while stopped
  2. Serves the message API and the browser bridge on the listen address
  3. Fires the session-end, preset and weekly reset alarms`,
	RunE: runDaemon,
}

func init() {
	daemonCmd.Flags().BoolVar(&daemonDebug, "debug", false, "Enable debug logging")
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, _ := loadConfig()
	if daemonDebug {
		cfg.Debug = true
	}

	application, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	defer func() {
		_ = application.Close()
	}()

	// Setup signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("focusgate: daemon listening on %s (db %s)", application.Addr(), cfg.DBPath)
	return application.Run(ctx)
}
