package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/valentindosimont/focusgate/internal/coordinator"
)

var blockCmd = &cobra.Command{
	Use:   "block",
	Short: "Manage the blocked site list",
}

var blockAddCmd = &cobra.Command{
	Use:   "add <url>",
	Short: "Block the site of a URL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			Domain    string `json:"domain"`
			Duplicate bool   `json:"duplicate"`
		}
		msg := coordinator.Message{Action: "addBlockedUrl", URL: args[0]}
		if err := newClient().Call(cmd.Context(), msg, &resp); err != nil {
			return err
		}
		if resp.Duplicate {
			fmt.Fprintf(cmd.OutOrStdout(), "%s is already blocked\n", resp.Domain)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Blocked %s\n", resp.Domain)
		}
		return nil
	},
}

var blockRemoveCmd = &cobra.Command{
	Use:   "remove <entry>",
	Short: "Remove an entry from the blocked list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			Removed bool `json:"removed"`
		}
		msg := coordinator.Message{Action: "removeBlockedUrl", URL: args[0]}
		if err := newClient().Call(cmd.Context(), msg, &resp); err != nil {
			return err
		}
		if !resp.Removed {
			return fmt.Errorf("%s is not on the blocked list", args[0])
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
		return nil
	},
}

var blockSetCmd = &cobra.Command{
	Use:   "set [entries...]",
	Short: "Replace the whole blocked list",
	RunE: func(cmd *cobra.Command, args []string) error {
		msg := coordinator.Message{Action: "updateUrls", URLs: args}
		if msg.URLs == nil {
			msg.URLs = []string{}
		}
		if err := newClient().Call(cmd.Context(), msg, nil); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Blocked list replaced\n")
		return nil
	},
}

var blockListCmd = &cobra.Command{
	Use:   "list",
	Short: "List blocked sites",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			URLs []string `json:"urls"`
		}
		msg := coordinator.Message{Action: "getBlockedUrls"}
		if err := newClient().Call(cmd.Context(), msg, &resp); err != nil {
			return err
		}
		if len(resp.URLs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No blocked sites")
			return nil
		}
		for _, u := range resp.URLs {
			fmt.Fprintln(cmd.OutOrStdout(), u)
		}
		return nil
	},
}

func init() {
	blockCmd.AddCommand(blockAddCmd)
	blockCmd.AddCommand(blockRemoveCmd)
	blockCmd.AddCommand(blockSetCmd)
	blockCmd.AddCommand(blockListCmd)
	rootCmd.AddCommand(blockCmd)
}
