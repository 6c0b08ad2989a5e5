package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/exclip/internal/clip"
	"go.klb.dev/exclip/internal/holder"
)

// runHolder is replaced in tests.
var runHolder = holder.Run

func newHoldCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   holder.HoldCommand,
		Short: "Own a selection with the data read from stdin",
		Long: `Reads stdin to the end and owns the given selection with it until another
application takes the selection over, the --timeout expires, or the process
receives SIGINT or SIGTERM. SIGHUP is ignored.

exclip starts one "exclip hold" per selection in the background; running it
by hand is mostly useful for scripts:

  printf 'hello' | exclip hold --selection clipboard &`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(cmd *cobra.Command, _ []string) error { return runHold(cmd, v) },
	}

	f := cmd.Flags()
	f.String("selection", string(clip.Clipboard), "selection to own: primary|clipboard")
	f.Float64P("timeout", "b", 0, "give the selection up after S seconds (0 = never)")
	addDisplayFlag(cmd)
	addLoggingFlags(cmd)
	addConfigFlag(cmd)

	return cmd
}

func runHold(cmd *cobra.Command, v *viper.Viper) error {
	setupLogging(v)

	sel, err := clip.ParseSelection(v.GetString("selection"))
	if err != nil {
		return err
	}
	expiry, err := secondsToDuration(v.GetFloat64("timeout"))
	if err != nil {
		return err
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}

	return runHolder(cmd.Context(), holder.Config{
		Display:   v.GetString("display"),
		Selection: string(sel),
		Data:      data,
		Expiry:    expiry,
	})
}
