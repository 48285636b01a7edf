package cli

import (
	"github.com/spf13/cobra"

	"github.com/valentindosimont/focusgate/internal/client"
	"github.com/valentindosimont/focusgate/internal/tui"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live countdown of the current session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, fileCfg := loadConfig()
		return tui.Run(client.New(cfg.ListenAddr), fileCfg.Session.DefaultMinutes)
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
