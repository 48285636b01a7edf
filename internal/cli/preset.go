package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/valentindosimont/focusgate/internal/coordinator"
)

var (
	presetID       string
	presetSchedule string
)

var presetCmd = &cobra.Command{
	Use:   "preset",
	Short: "Manage session presets",
}

var presetListCmd = &cobra.Command{
	Use:   "list",
	Short: "List presets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			Presets []coordinator.PresetView `json:"presets"`
		}
		if err := newClient().Call(cmd.Context(), coordinator.Message{Action: "listPresets"}, &resp); err != nil {
			return err
		}
		if len(resp.Presets) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No presets")
			return nil
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tMINUTES\tDAILY AT")
		for _, p := range resp.Presets {
			at := p.ScheduleTime
			if at == "" {
				at = "-"
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", p.ID, p.Name, p.Minutes, at)
		}
		return tw.Flush()
	},
}

var presetSaveCmd = &cobra.Command{
	Use:   "save <name> <minutes>",
	Short: "Create or update a preset",
	Long: `Save a preset. --at binds it to a daily start time; it accepts
"21:30" as well as phrases like "9pm".`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			Preset coordinator.PresetView `json:"preset"`
		}
		msg := coordinator.Message{
			Action:       "savePreset",
			ID:           presetID,
			Name:         args[0],
			Minutes:      args[1],
			ScheduleTime: presetSchedule,
		}
		if err := newClient().Call(cmd.Context(), msg, &resp); err != nil {
			return err
		}
		p := resp.Preset
		if p.ScheduleTime != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%s): %d minutes daily at %s\n", p.Name, p.ID, p.Minutes, p.ScheduleTime)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%s): %d minutes\n", p.Name, p.ID, p.Minutes)
		}
		return nil
	},
}

var presetDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a preset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			Removed bool `json:"removed"`
		}
		msg := coordinator.Message{Action: "deletePreset", ID: args[0]}
		if err := newClient().Call(cmd.Context(), msg, &resp); err != nil {
			return err
		}
		if !resp.Removed {
			return fmt.Errorf("preset %s not found", args[0])
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted preset %s\n", args[0])
		return nil
	},
}

var presetStartCmd = &cobra.Command{
	Use:   "start <id>",
	Short: "Start a session from a preset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp timerResponse
		msg := coordinator.Message{Action: "startPreset", ID: args[0]}
		if err := newClient().Call(cmd.Context(), msg, &resp); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Focus session started: %d minutes\n", resp.TimerDurationMinutes)
		return nil
	},
}

func init() {
	presetSaveCmd.Flags().StringVar(&presetID, "id", "", "Update the preset with this id")
	presetSaveCmd.Flags().StringVar(&presetSchedule, "at", "", "Daily start time")

	presetCmd.AddCommand(presetListCmd)
	presetCmd.AddCommand(presetSaveCmd)
	presetCmd.AddCommand(presetDeleteCmd)
	presetCmd.AddCommand(presetStartCmd)
	rootCmd.AddCommand(presetCmd)
}
