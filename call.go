package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"i4.energy/across/cidmodem/modem"
	"i4.energy/across/cidmodem/notify"
)

var errNoNumber = errors.New("number is required")

func newCallCmd() *cobra.Command {
	callCmd := &cobra.Command{
		Use:   "call <number>",
		Short: "Place a single outbound voice call and hang up",
		Long: `Opens the modem, dials the number, waits up to --max-wait seconds for a
result and hangs up again. Incoming caller ID frames seen meanwhile are logged.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE:         runCall,
	}
	callCmd.Flags().Int("max-wait", 10, "Seconds to wait for a dial result")
	return callCmd
}

func runCall(cmd *cobra.Command, args []string) error {
	number := strings.TrimSpace(args[0])
	if number == "" {
		return errNoNumber
	}

	config, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(config.LogLevel)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m, err := openModem(ctx, config, logger, nil, notify.LogHandler(logger.With("component", "notify")))
	if err != nil {
		logger.Error("Failed to open modem", "error", err)
		return err
	}

	loopDone := make(chan error, 1)
	go func() {
		loopDone <- m.Loop(ctx)
	}()

	res := m.Callout(number, config.CallMaxWait)

	if err := m.Close(); err != nil && !errors.Is(err, modem.ErrAlreadyClosed) {
		logger.Warn("Failed to close modem", "error", err)
	}
	if err := <-loopDone; err != nil && !errors.Is(err, context.Canceled) {
		logger.Debug("Modem loop stopped", "error", err)
	}

	switch {
	case res.TimedOut:
		fmt.Fprintf(cmd.OutOrStdout(), "%s: no result after %d polls\n", res.Number, res.Polls)
	default:
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", res.Number, res.Response)
	}
	return nil
}
