package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/duewatch/internal/engine"
)

// CheckOptions holds flags for the check command.
type CheckOptions struct {
	*RootOptions
	Takeover bool
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run one evaluation cycle now",
		Long: `Run one evaluation cycle over the cached due items and show the
notifications that qualify right now. Equivalent to
exec '{"command":"force-check"}'.

Example:
  duewatch check
  duewatch check --takeover --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Takeover, "takeover", false, "claim the instance lease from a running daemon")

	return cmd
}

func runCheck(opts *CheckOptions, cmd *cobra.Command) error {
	// Notifications go to stdout in text mode; JSON output stays parseable.
	var sink io.Writer = cmd.OutOrStdout()
	if opts.Format == "json" {
		sink = cmd.ErrOrStderr()
	}

	rt, err := opts.openRuntime(sink)
	if err != nil {
		return err
	}
	defer rt.Close()

	replies, err := rt.oneShot(cmd.Context(), opts.Takeover, []byte(`{"command":"force-check"}`))
	if err != nil {
		return WrapExitError(ExitFailure, "check failed", err)
	}
	reply := replies[0]

	if report, ok := reply.Data.(engine.CycleReport); ok {
		reply.Data = checkSummary(report)
	}
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if err := out.Reply(reply); err != nil {
		return err
	}
	if !reply.OK {
		if engine.IsNotActive(reply.Err()) {
			return NewExitError(ExitFailure, "another instance holds the lease; rerun with --takeover")
		}
		return NewExitError(ExitFailure, "check failed: "+reply.Error)
	}
	return nil
}

// checkSummary renders a cycle report for humans.
type checkSummary engine.CycleReport

func (s checkSummary) MarshalJSON() ([]byte, error) {
	return json.Marshal(engine.CycleReport(s))
}

func (s checkSummary) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Checked %d due items at %s: %d qualifying",
		s.Items, s.At.Format("2006-01-02 15:04"), s.Qualifying)
	if s.ConfigSource != "" {
		fmt.Fprintf(&b, " (config: %s)", s.ConfigSource)
	}
	if s.Aborted != "" {
		fmt.Fprintf(&b, "\nStopped: %s", s.Aborted)
	}
	if len(s.Notified) > 0 {
		fmt.Fprintf(&b, "\nNotified: %s", strings.Join(s.Notified, ", "))
	}
	if len(s.Failed) > 0 {
		fmt.Fprintf(&b, "\nFailed: %s", strings.Join(s.Failed, ", "))
	}
	if len(s.Skipped) > 0 {
		fmt.Fprintf(&b, "\nSkipped (unreadable due date): %s", strings.Join(s.Skipped, ", "))
	}
	return b.String()
}
