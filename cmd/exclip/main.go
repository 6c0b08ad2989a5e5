// exclip: re-host the current X11 selection as PRIMARY and CLIPBOARD.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags "-X main.Version=x.y.z".
var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// usageError is a command-line mistake; the usage text follows the error.
type usageError struct {
	err   error
	usage string
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

// run executes the command line and returns the process exit code.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.AddCommand(
		newHoldCmd(),
		newGetCmd(),
		newStatusCmd(),
		newVersionCmd(),
	)
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "ERROR: %s\n", err)
		var uerr *usageError
		if errors.As(err, &uerr) {
			fmt.Fprint(stderr, uerr.usage)
		}
		return 1
	}
	return 0
}

// flagError turns pflag parse failures into usage errors.
func flagError(cmd *cobra.Command, err error) error {
	return &usageError{err: err, usage: cmd.UsageString()}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "exclip %s\n", Version)
		},
	}
}
