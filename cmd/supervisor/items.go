package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/eliteGoblin/focusd/supervisor/internal/domain"
	"github.com/eliteGoblin/focusd/supervisor/internal/infra"
	"github.com/eliteGoblin/focusd/supervisor/internal/schedule"
	"github.com/eliteGoblin/focusd/supervisor/internal/usecase"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List supervision items and blacklists",
	Long: `Lists every supervision item with its window, action and blacklist.
Use --at HH:MM to see which items would be locked at another time today.`,
	RunE: runList,
}

var itemCmd = &cobra.Command{
	Use:   "item",
	Short: "Manage supervision items",
}

var itemAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a supervision item",
	Example: `  supervisor item add --name Study --start 09:00 --end 11:00 --action lock
  supervisor item add --name Evening --start 21:30 --end 23:00 --action shutdown`,
	Args: cobra.NoArgs,
	RunE: runItemAdd,
}

var itemEditCmd = &cobra.Command{
	Use:   "edit <item>",
	Short: "Change an item's name, window, action or own-blacklist flag",
	Args:  cobra.ExactArgs(1),
	RunE:  runItemEdit,
}

var itemDeleteCmd = &cobra.Command{
	Use:   "delete <item>",
	Short: "Delete an item",
	Args:  cobra.ExactArgs(1),
	RunE:  runItemDelete,
}

var itemEnableCmd = &cobra.Command{
	Use:   "enable <item>",
	Short: "Enable an item",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return runItemToggle(args[0], true) },
}

var itemDisableCmd = &cobra.Command{
	Use:   "disable <item>",
	Short: "Disable an item",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return runItemToggle(args[0], false) },
}

var (
	listAt string

	itemName         string
	itemStart        string
	itemEnd          string
	itemAction       string
	itemOwnBlacklist bool
	itemProcesses    []string
	itemForce        bool
)

func init() {
	listCmd.Flags().StringVar(&listAt, "at", "", "Evaluate locks at HH:MM today instead of now")

	for _, c := range []*cobra.Command{itemAddCmd, itemEditCmd} {
		c.Flags().StringVar(&itemName, "name", "", "Item name")
		c.Flags().StringVar(&itemStart, "start", "", "Window start (HH:MM)")
		c.Flags().StringVar(&itemEnd, "end", "", "Window end (HH:MM)")
		c.Flags().StringVar(&itemAction, "action", string(domain.ActionAlert), "lock, shutdown, alert or blacklist_only")
		c.Flags().BoolVar(&itemOwnBlacklist, "own-blacklist", false, "Use the item's own blacklist instead of the global one")
		c.Flags().BoolVar(&itemForce, "force", false, "Save even if the window is already in progress")
	}
	itemAddCmd.Flags().StringSliceVar(&itemProcesses, "blacklist", nil, "Process names for the item's own blacklist")

	itemCmd.AddCommand(itemAddCmd)
	itemCmd.AddCommand(itemEditCmd)
	itemCmd.AddCommand(itemDeleteCmd)
	itemCmd.AddCommand(itemEnableCmd)
	itemCmd.AddCommand(itemDisableCmd)
}

// clockAt returns a clock frozen at hh:mm today, or the system clock if at is empty.
func clockAt(at string, now time.Time) (domain.Clock, error) {
	if at == "" {
		return infra.SystemClock{}, nil
	}
	c, err := schedule.ParseClock(at)
	if err != nil {
		return nil, fmt.Errorf("invalid --at: %w", err)
	}
	return usecase.FixedClock(c.On(now)), nil
}

func runList(cmd *cobra.Command, args []string) error {
	clock, err := clockAt(listAt, time.Now())
	if err != nil {
		return err
	}
	a, err := newApp(clock)
	if err != nil {
		return err
	}
	defer a.close()

	fmt.Println("\n=== Supervision Items ===")
	if listAt != "" {
		fmt.Printf("(evaluated at %s)\n", clock.Now().Format("15:04"))
	}
	statuses := a.service.Status()
	printStatus(statuses)
	for _, st := range statuses {
		if !st.Item.EnableOwnBlacklist {
			continue
		}
		fmt.Printf("\n[%s] own blacklist:\n", st.Item.Name)
		printBlacklist(st.Item.Blacklist)
	}

	fmt.Println("\nGlobal blacklist:")
	printBlacklist(a.service.GlobalBlacklist())
	fmt.Println("=========================")
	return nil
}

func printStatus(statuses []usecase.ItemStatus) {
	if len(statuses) == 0 {
		fmt.Println("  (no items)")
		return
	}
	for _, st := range statuses {
		it := st.Item
		state := "off"
		if it.Active {
			state = "on"
		}
		var flags []string
		if st.InWindow {
			flags = append(flags, "IN WINDOW")
		}
		if st.Restricted {
			flags = append(flags, "LOCKED")
		}
		fmt.Printf("  %s  %-16s %s-%s  %-14s %-3s %s\n",
			shortID(it.ID), it.Name, it.Start, it.End, it.Action, state, strings.Join(flags, ", "))
	}
}

func printBlacklist(list []domain.BlacklistEntry) {
	if len(list) == 0 {
		fmt.Println("  (empty)")
		return
	}
	for _, e := range list {
		mark := "x"
		if e.Active {
			mark = "+"
		}
		fmt.Printf("  [%s] %s\n", mark, e.Name)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// explain adds the CLI hint to a refusal the user can override.
func explain(err error) error {
	if errors.Is(err, domain.ErrWindowInProgress) {
		return fmt.Errorf("%w; rerun with --force to save it anyway", err)
	}
	return err
}

func runItemAdd(cmd *cobra.Command, args []string) error {
	a, err := newApp(infra.SystemClock{})
	if err != nil {
		return err
	}
	defer a.close()

	item := domain.SupervisionItem{
		Name:               itemName,
		Start:              itemStart,
		End:                itemEnd,
		Action:             domain.Action(itemAction),
		EnableOwnBlacklist: itemOwnBlacklist,
	}
	for _, p := range itemProcesses {
		item.Blacklist = append(item.Blacklist, domain.BlacklistEntry{Name: p, Active: true})
	}

	added, err := a.service.AddItem(item, itemForce)
	if err != nil {
		return explain(err)
	}
	fmt.Printf("Added %s %q %s-%s (%s)\n", shortID(added.ID), added.Name, added.Start, added.End, added.Action)
	return nil
}

func runItemEdit(cmd *cobra.Command, args []string) error {
	a, err := newApp(infra.SystemClock{})
	if err != nil {
		return err
	}
	defer a.close()

	cur, err := a.service.ResolveItem(args[0])
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("name") {
		cur.Name = itemName
	}
	if flags.Changed("start") {
		cur.Start = itemStart
	}
	if flags.Changed("end") {
		cur.End = itemEnd
	}
	if flags.Changed("action") {
		cur.Action = domain.Action(itemAction)
	}
	if flags.Changed("own-blacklist") {
		cur.EnableOwnBlacklist = itemOwnBlacklist
	}

	if err := a.service.UpdateItem(cur.ID, cur, itemForce); err != nil {
		return explain(err)
	}
	fmt.Printf("Updated %s %q\n", shortID(cur.ID), strings.TrimSpace(cur.Name))
	return nil
}

func runItemDelete(cmd *cobra.Command, args []string) error {
	a, err := newApp(infra.SystemClock{})
	if err != nil {
		return err
	}
	defer a.close()

	it, err := a.service.ResolveItem(args[0])
	if err != nil {
		return err
	}
	if err := a.service.DeleteItem(it.ID); err != nil {
		return err
	}
	fmt.Printf("Deleted %s %q\n", shortID(it.ID), it.Name)
	return nil
}

func runItemToggle(ref string, active bool) error {
	a, err := newApp(infra.SystemClock{})
	if err != nil {
		return err
	}
	defer a.close()

	it, err := a.service.ResolveItem(ref)
	if err != nil {
		return err
	}
	if err := a.service.ToggleItemActive(it.ID, active); err != nil {
		return err
	}
	verb := "Disabled"
	if active {
		verb = "Enabled"
	}
	fmt.Printf("%s %s %q\n", verb, shortID(it.ID), it.Name)
	return nil
}
