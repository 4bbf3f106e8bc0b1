package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eliteGoblin/focusd/supervisor/internal/infra"
)

var blacklistCmd = &cobra.Command{
	Use:   "blacklist",
	Short: "Manage blacklisted processes",
	Long: `Manages the global blacklist, or an item's own blacklist with --item.
Process names are matched exactly, ignoring case.`,
}

var blacklistAddCmd = &cobra.Command{
	Use:   "add <process>",
	Short: "Blacklist a process",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBlacklist(args[0], "Blacklisted", func(a *app, itemID, name string) error {
			return a.service.AddBlacklistEntry(itemID, name)
		})
	},
}

var blacklistRemoveCmd = &cobra.Command{
	Use:   "remove <process>",
	Short: "Remove a process from a blacklist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBlacklist(args[0], "Removed", func(a *app, itemID, name string) error {
			return a.service.RemoveBlacklistEntry(itemID, name)
		})
	},
}

var blacklistEnableCmd = &cobra.Command{
	Use:   "enable <process>",
	Short: "Enable a blacklist entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBlacklist(args[0], "Enabled", func(a *app, itemID, name string) error {
			return a.service.ToggleBlacklistEntry(itemID, name, true)
		})
	},
}

var blacklistDisableCmd = &cobra.Command{
	Use:   "disable <process>",
	Short: "Disable a blacklist entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBlacklist(args[0], "Disabled", func(a *app, itemID, name string) error {
			return a.service.ToggleBlacklistEntry(itemID, name, false)
		})
	},
}

var blacklistItem string

func init() {
	blacklistCmd.PersistentFlags().StringVar(&blacklistItem, "item", "", "Item whose own blacklist to change (default global)")

	blacklistCmd.AddCommand(blacklistAddCmd)
	blacklistCmd.AddCommand(blacklistRemoveCmd)
	blacklistCmd.AddCommand(blacklistEnableCmd)
	blacklistCmd.AddCommand(blacklistDisableCmd)
}

func runBlacklist(name, verb string, fn func(a *app, itemID, name string) error) error {
	a, err := newApp(infra.SystemClock{})
	if err != nil {
		return err
	}
	defer a.close()

	itemID, scope := "", "global blacklist"
	if blacklistItem != "" {
		it, err := a.service.ResolveItem(blacklistItem)
		if err != nil {
			return err
		}
		itemID, scope = it.ID, fmt.Sprintf("blacklist of %q", it.Name)
	}

	if err := fn(a, itemID, name); err != nil {
		return err
	}
	fmt.Printf("%s %s (%s)\n", verb, name, scope)
	return nil
}
