package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/eliteGoblin/focusd/supervisor/internal/domain"
	"github.com/eliteGoblin/focusd/supervisor/internal/infra"
	"github.com/eliteGoblin/focusd/supervisor/internal/usecase"
)

var tomatoCmd = &cobra.Command{
	Use:   "tomato",
	Short: "Pomodoro focus timer",
}

var tomatoStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Count down a focus session in the terminal",
	Args:  cobra.NoArgs,
	RunE:  runTomatoStart,
}

var tomatoSetCmd = &cobra.Command{
	Use:   "set <minutes>",
	Short: "Set the default focus session length",
	Args:  cobra.ExactArgs(1),
	RunE:  runTomatoSet,
}

var tomatoMinutes int

func init() {
	tomatoStartCmd.Flags().IntVar(&tomatoMinutes, "minutes", 0, "Session length for this run (default: configured length)")

	tomatoCmd.AddCommand(tomatoStartCmd)
	tomatoCmd.AddCommand(tomatoSetCmd)
}

func runTomatoStart(cmd *cobra.Command, args []string) error {
	a, err := newApp(infra.SystemClock{})
	if err != nil {
		return err
	}
	defer a.close()

	duration := time.Duration(a.service.TomatoDuration()) * time.Second
	if tomatoMinutes != 0 {
		if tomatoMinutes < usecase.MinTomatoMinutes || tomatoMinutes > usecase.MaxTomatoMinutes {
			return &domain.ValidationError{
				Field:  "minutes",
				Reason: fmt.Sprintf("must be between %d and %d", usecase.MinTomatoMinutes, usecase.MaxTomatoMinutes),
			}
		}
		duration = time.Duration(tomatoMinutes) * time.Minute
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	notifier := infra.NewDesktopNotifier(&infra.RealCommandRunner{}, a.settings.AlertDuration, a.logger)
	err = usecase.NewTomato(duration, notifier).Run(ctx, func(remaining time.Duration) {
		fmt.Printf("\rFocus: %s ", usecase.FormatRemaining(remaining))
	})
	fmt.Println()
	if errors.Is(err, context.Canceled) {
		fmt.Println("Focus session abandoned")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Println("Focus session finished!")
	notifier.Wait()
	return nil
}

func runTomatoSet(cmd *cobra.Command, args []string) error {
	minutes, err := strconv.Atoi(args[0])
	if err != nil {
		return &domain.ValidationError{Field: "minutes", Reason: "must be a whole number"}
	}

	a, err := newApp(infra.SystemClock{})
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.service.SetTomatoDuration(minutes); err != nil {
		return err
	}
	fmt.Printf("Focus sessions now last %d minutes\n", minutes)
	return nil
}
