package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/duewatch/internal/api"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Addr string // overrides http.addr when set
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the notification engine",
		Long: `Run the background notification engine.

The engine claims the instance lease, resumes scheduled notifications that
survived a restart, registers periodic sync triggers and processes events until
interrupted. With an HTTP address configured it also accepts messages and push
payloads over HTTP.

Example:
  duewatch run --db ./duewatch.db
  duewatch run --addr 127.0.0.1:8787 --verbose`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "HTTP listen address (overrides http.addr)")

	return cmd
}

func runEngine(opts *RunOptions, cmd *cobra.Command) error {
	rt, err := opts.openRuntime(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer rt.Close()

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	rt.engine.Start(ctx)

	addr := opts.Config.HTTP.Addr
	if opts.Addr != "" {
		addr = opts.Addr
	}
	httpErr := make(chan error, 1)
	if addr != "" {
		srv := api.NewServer(rt.engine, rt.tray)
		go func() {
			if err := srv.ListenAndServe(ctx, addr); err != nil {
				slog.Error("http server failed", "addr", addr, "error", err)
				httpErr <- err
				cancel()
			}
		}()
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Engine %s started. Press Ctrl-C to stop.\n", rt.engine.Instance())

	err = rt.engine.Run(ctx)
	select {
	case herr := <-httpErr:
		return WrapExitError(ExitCommandError, "http server failed", herr)
	default:
	}
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "engine error", err)
	}

	slog.Info("engine stopped gracefully")
	return nil
}
