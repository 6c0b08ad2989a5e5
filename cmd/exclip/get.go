package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/exclip/internal/clip"
)

func newGetCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "get",
		Short: "Print a selection to stdout",
		Long: `Prints the current contents of a selection to stdout without any filtering,
like "xclip -o".`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(cmd *cobra.Command, _ []string) error { return runGet(cmd, v) },
	}

	f := cmd.Flags()
	f.String("selection", string(clip.Primary), "selection to read: primary|clipboard")
	addDisplayFlag(cmd)
	addLoggingFlags(cmd)
	addConfigFlag(cmd)

	return cmd
}

func runGet(cmd *cobra.Command, v *viper.Viper) error {
	setupLogging(v)

	sel, err := clip.ParseSelection(v.GetString("selection"))
	if err != nil {
		return err
	}
	backend, err := newBackend(clip.Options{Display: v.GetString("display")})
	if err != nil {
		return err
	}
	defer backend.Close()

	data, err := backend.Read(cmd.Context(), sel)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
