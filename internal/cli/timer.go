package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/valentindosimont/focusgate/internal/client"
	"github.com/valentindosimont/focusgate/internal/coordinator"
)

type timerResponse struct {
	TimerEndTime         int64 `json:"timerEndTime"`
	TimerActive          bool  `json:"timerActive"`
	TimerDurationMinutes int   `json:"timerDurationMinutes"`
	Enabled              bool  `json:"enabled"`
	Clamped              bool  `json:"clamped"`
}

var startCmd = &cobra.Command{
	Use:   "start [minutes]",
	Short: "Start a focus session",
	Long: `Start a timed focus session. Blocking turns on until the session ends.

Without an argument the session lasts session.default_minutes. Starting
while a session runs replaces it.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStart,
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "End the session and turn blocking off",
	Args:  cobra.NoArgs,
	RunE:  runStop,
}

var reduceCmd = &cobra.Command{
	Use:   "reduce [minutes]",
	Short: "Shorten the running session",
	Long: `Move the end of the running session earlier (1 minute by default).
The session never ends sooner than a few seconds from now.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReduce,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show blocking and session state",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var onCmd = &cobra.Command{
	Use:   "on",
	Short: "Turn blocking on without a timer",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runToggle(cmd, true)
	},
}

var offCmd = &cobra.Command{
	Use:   "off",
	Short: "Turn manual blocking off (ignored while a session runs)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runToggle(cmd, false)
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(reduceCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(onCmd)
	rootCmd.AddCommand(offCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	_, fileCfg := loadConfig()
	var minutes any = fileCfg.Session.DefaultMinutes
	if len(args) == 1 {
		minutes = args[0]
	}

	var resp timerResponse
	msg := coordinator.Message{Action: "startTimer", Minutes: minutes, Source: "cli"}
	if err := newClient().Call(cmd.Context(), msg, &resp); err != nil {
		return err
	}

	end := time.UnixMilli(resp.TimerEndTime)
	fmt.Fprintf(cmd.OutOrStdout(), "Focus session started: %d minutes, ends at %s\n",
		resp.TimerDurationMinutes, end.Format("3:04 PM"))
	return nil
}

func runStop(cmd *cobra.Command, args []string) error {
	msg := coordinator.Message{Action: "expireTimer"}
	if err := newClient().Call(cmd.Context(), msg, nil); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Session ended, blocking is off")
	return nil
}

func runReduce(cmd *cobra.Command, args []string) error {
	msg := coordinator.Message{Action: "reduceTimer"}
	if len(args) == 1 {
		msg.Minutes = args[0]
	}

	var resp timerResponse
	if err := newClient().Call(cmd.Context(), msg, &resp); err != nil {
		return err
	}

	end := time.UnixMilli(resp.TimerEndTime)
	fmt.Fprintf(cmd.OutOrStdout(), "Session now ends %s (%s)\n", humanize.Time(end), end.Format("3:04:05 PM"))
	if resp.Clamped {
		fmt.Fprintln(cmd.OutOrStdout(), "Reduced as far as allowed")
	}
	return nil
}

func runToggle(cmd *cobra.Command, enabled bool) error {
	var resp timerResponse
	msg := coordinator.Message{Action: "toggle", Enabled: &enabled}
	if err := newClient().Call(cmd.Context(), msg, &resp); err != nil {
		return err
	}

	switch {
	case resp.TimerActive && !enabled:
		fmt.Fprintln(cmd.OutOrStdout(), "A focus session is running; blocking stays on")
	case resp.Enabled:
		fmt.Fprintln(cmd.OutOrStdout(), "Blocking is on")
	default:
		fmt.Fprintln(cmd.OutOrStdout(), "Blocking is off")
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	s, err := newClient().State(cmd.Context())
	if err != nil {
		return err
	}
	printStatus(cmd.OutOrStdout(), s)
	return nil
}

func printStatus(w io.Writer, s client.State) {
	switch {
	case s.TimerActive:
		remaining := s.Remaining().Round(time.Second)
		fmt.Fprintf(w, "Focus session:  %d minutes, started %s\n", s.TimerDurationMinutes, humanize.Time(s.StartTime()))
		fmt.Fprintf(w, "Remaining:      %s (ends %s)\n", remaining, s.EndTime().Format("3:04 PM"))
	case s.Enabled:
		fmt.Fprintln(w, "Blocking:       on (manual)")
	default:
		fmt.Fprintln(w, "Blocking:       off")
	}
}
