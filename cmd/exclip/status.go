package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/exclip/internal/ipc"
	"go.klb.dev/exclip/internal/message"
)

const statusTimeout = 2 * time.Second

func newStatusCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show running selection holders",
		Long: `Lists the background holder processes started by exclip, with the
selection each one owns, the payload size, its expiry and how many requests
it has answered.

Sockets left behind by holders that were killed are removed.`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(cmd *cobra.Command, _ []string) error { return runStatus(cmd, v) },
	}

	f := cmd.Flags()
	f.Bool("json", false, "output raw JSON")
	addLoggingFlags(cmd)
	addConfigFlag(cmd)

	return cmd
}

func runStatus(cmd *cobra.Command, v *viper.Viper) error {
	setupLogging(v)

	holders, err := collectHolders()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if v.GetBool("json") {
		if holders == nil {
			holders = []message.HolderInfo{}
		}
		enc, err := json.MarshalIndent(holders, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(enc))
		return nil
	}

	printStatus(out, holders)
	return nil
}

// collectHolders queries every status socket, removing stale ones.
func collectHolders() ([]message.HolderInfo, error) {
	socks, err := ipc.Sockets()
	if err != nil {
		return nil, fmt.Errorf("list holders: %w", err)
	}

	var holders []message.HolderInfo
	for _, path := range socks {
		info, err := ipc.Query(path, statusTimeout)
		if err != nil {
			if isStale(err) {
				slog.Debug("removing stale holder socket", "path", path)
				_ = os.Remove(path)
			} else {
				slog.Warn("holder did not answer", "path", path, "err", err)
			}
			continue
		}
		holders = append(holders, *info)
	}
	return holders, nil
}

// isStale reports whether a dial error means nobody listens on the socket.
func isStale(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, os.ErrNotExist)
}

func printStatus(w io.Writer, holders []message.HolderInfo) {
	if len(holders) == 0 {
		fmt.Fprintln(w, "No holders running.")
		return
	}

	tw := tabwriter.NewWriter(w, 1, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "PID\tSELECTION\tSIZE\tSTARTED\tEXPIRES\tSTATE\tSERVED\n")
	_, _ = fmt.Fprintf(tw, "---\t---------\t----\t-------\t-------\t-----\t------\n")
	for _, h := range holders {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\t%s\t%d\n",
			h.PID, h.Selection, h.Size,
			fmtAge(h.StartedAt), fmtExpiry(h.ExpiresAt), holderState(h), h.Served,
		)
	}
	_ = tw.Flush()
}

func holderState(h message.HolderInfo) string {
	switch {
	case h.Cleared:
		return "draining (" + strconv.Itoa(h.InFlight) + ")"
	case h.InFlight > 0:
		return "sending (" + strconv.Itoa(h.InFlight) + ")"
	default:
		return "owner"
	}
}

func fmtExpiry(t *time.Time) string {
	if t == nil {
		return "never"
	}
	left := time.Until(*t).Round(time.Second)
	if left <= 0 {
		return "now"
	}
	return "in " + left.String()
}

func fmtAge(t time.Time) string {
	age := time.Since(t).Round(time.Second)
	if age < time.Minute {
		return fmt.Sprintf("%ds ago", int(age.Seconds()))
	}
	if age < time.Hour {
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	}
	return t.Format("15:04:05")
}
