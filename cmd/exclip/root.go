package main

import (
	"fmt"
	"math"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/exclip/internal/clip"
	"go.klb.dev/exclip/internal/relay"
	"go.klb.dev/exclip/internal/transform"
)

func newRootCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "exclip [flags]",
		Short: "Re-host the current selection as PRIMARY and CLIPBOARD",
		Long: `exclip reads the PRIMARY selection (or CLIPBOARD with -c), tidies the
text and makes the result available as both PRIMARY and CLIPBOARD. Each
selection is held by a detached background process that exits when another
application takes the selection over or when the --timeout expires.

By default tabs become single spaces, newlines are removed and leading and
trailing whitespace is stripped. --verbatim keeps the text as is.

Config file search order (first found wins):
  /etc/exclip/exclip.toml
  $HOME/.config/exclip/exclip.toml
  path supplied via --config

All flags can be set via EXCLIP_<FLAG> env vars or config-file keys.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return flagError(cmd, fmt.Errorf("unexpected argument %q", args[0]))
			}
			return nil
		},
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(cmd *cobra.Command, _ []string) error { return runRelay(cmd, v) },
	}
	cmd.SetFlagErrorFunc(flagError)

	f := cmd.Flags()
	f.BoolP("from-clip", "c", false, "read CLIPBOARD instead of PRIMARY")
	f.BoolP("verbatim", "x", false, "keep tabs, newlines and outer whitespace")
	f.BoolP("slashes-to-dots", "d", false, "replace every / with .")
	f.IntP("tabs-to-spaces", "t", -1, "replace every tab with N spaces, even with --verbatim")
	f.IntP("remove-prefix-byte", "p", 0, "drop the first N bytes of the result (-p alone drops one; use -p=N or --remove-prefix-byte=N)")
	f.Lookup("remove-prefix-byte").NoOptDefVal = "1"
	f.Float64P("timeout", "b", 0, "expire the selections after S seconds (fractions allowed, 0 = never)")
	addDisplayFlag(cmd)
	addLoggingFlags(cmd)
	addConfigFlag(cmd)

	return cmd
}

// relayConfig maps the bound flags to a relay configuration.
func relayConfig(v *viper.Viper) (relay.Config, error) {
	expiry, err := secondsToDuration(v.GetFloat64("timeout"))
	if err != nil {
		return relay.Config{}, err
	}
	prefix := v.GetInt("remove-prefix-byte")
	if prefix < 0 {
		return relay.Config{}, fmt.Errorf("invalid prefix length %d", prefix)
	}

	cfg := relay.Config{
		Source: clip.Primary,
		Filters: transform.Options{
			Verbatim:      v.GetBool("verbatim"),
			TabWidth:      v.GetInt("tabs-to-spaces"),
			SlashesToDots: v.GetBool("slashes-to-dots"),
			DropPrefix:    prefix,
		},
		Expiry: expiry,
	}
	if v.GetBool("from-clip") {
		cfg.Source = clip.Clipboard
	}
	return cfg, nil
}

func runRelay(cmd *cobra.Command, v *viper.Viper) error {
	setupLogging(v)

	cfg, err := relayConfig(v)
	if err != nil {
		return err
	}
	backend, err := newBackend(clip.Options{Display: v.GetString("display")})
	if err != nil {
		return err
	}
	defer backend.Close()

	return relay.Run(cmd.Context(), backend, cfg)
}

// secondsToDuration converts a --timeout value.
func secondsToDuration(s float64) (time.Duration, error) {
	if s < 0 || math.IsNaN(s) || math.IsInf(s, 0) || s > math.MaxInt64/float64(time.Second) {
		return 0, fmt.Errorf("invalid timeout %v", s)
	}
	return time.Duration(s * float64(time.Second)), nil
}
