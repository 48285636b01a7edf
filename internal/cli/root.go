package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/valentindosimont/focusgate/internal/app"
	"github.com/valentindosimont/focusgate/internal/client"
	"github.com/valentindosimont/focusgate/internal/config"
)

var (
	configPath  string
	listenAddr  string
	versionInfo string
)

// SetVersion sets the version information from build-time ldflags
func SetVersion(version, commit, date string) {
	versionInfo = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
	rootCmd.Version = versionInfo
}

// Execute runs the CLI
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "focusgate",
	Short: "Site blocker with timed focus sessions",
	Long: `focusgate - block distracting sites for a fixed focus session

The daemon keeps the session state, closes tabs that open blocked sites
while blocking is on, and fires scheduled presets. Every other command
talks to a running daemon.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Default to the watch view if no subcommand specified
		return watchCmd.RunE(cmd, args)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "Config file path")
	rootCmd.PersistentFlags().StringVar(&listenAddr, "addr", "", "Daemon address (overrides server.listen_addr)")
}

// loadConfig reads the config file and applies the --addr flag
func loadConfig() (app.Config, *config.Config) {
	cfg, fileCfg := app.LoadConfigFrom(configPath)
	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}
	return cfg, fileCfg
}

func newClient() *client.Client {
	cfg, _ := loadConfig()
	return client.New(cfg.ListenAddr)
}
