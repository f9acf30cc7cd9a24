package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// ExecOptions holds flags for the exec command.
type ExecOptions struct {
	*RootOptions
	Takeover bool
}

// NewExecCommand creates the exec command.
func NewExecCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExecOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "exec <message-json | ->",
		Short: "Send one inbound message to the engine",
		Long: `Send one inbound message to a one-shot engine over the configured database
and print its reply. Pass - to read the message from stdin.

Commands that show notifications (force-check) need the instance lease. When a
daemon holds it the reply is NOT_ACTIVE; --takeover claims the lease first.

Example:
  duewatch exec '{"command":"schedule-sync","tag":"check-vencimientos"}'
  duewatch exec '{"command":"debug-config"}' --format json
  echo '{"command":"force-check"}' | duewatch exec - --takeover`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readMessage(args[0], cmd.InOrStdin())
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read message", err)
			}
			return execMessage(opts, cmd, raw)
		},
	}

	cmd.Flags().BoolVar(&opts.Takeover, "takeover", false, "claim the instance lease before sending")

	return cmd
}

func readMessage(arg string, stdin io.Reader) ([]byte, error) {
	if arg != "-" {
		return []byte(arg), nil
	}
	raw, err := io.ReadAll(stdin)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(string(raw)) == "" {
		return nil, fmt.Errorf("empty message on stdin")
	}
	return raw, nil
}

func execMessage(opts *ExecOptions, cmd *cobra.Command, raw []byte) error {
	rt, err := opts.openRuntime(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer rt.Close()

	replies, err := rt.oneShot(cmd.Context(), opts.Takeover, raw)
	if err != nil {
		return WrapExitError(ExitFailure, "exec failed", err)
	}
	reply := replies[0]

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if err := out.Reply(reply); err != nil {
		return err
	}
	if !reply.OK {
		return NewExitError(ExitFailure, fmt.Sprintf("%s rejected: %s", reply.Command, reply.Error))
	}
	return nil
}
