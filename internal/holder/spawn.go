package holder

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
)

// HoldCommand is the subcommand of the exclip binary that runs a holder.
const HoldCommand = "hold"

// Spawn starts a detached holder process for cfg and returns once the
// payload has been handed over. The child is not waited for.
func Spawn(cfg Config) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}
	cmd := command(exe, cfg)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start holder for %s: %w", cfg.Selection, err)
	}
	_, werr := stdin.Write(cfg.Data)
	cerr := stdin.Close()
	if werr == nil {
		werr = cerr
	}
	if werr != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return fmt.Errorf("hand payload to holder for %s: %w", cfg.Selection, werr)
	}
	return cmd.Process.Release()
}

// command builds the re-exec of exe that runs cfg.
func command(exe string, cfg Config) *exec.Cmd {
	args := []string{HoldCommand, "--selection", cfg.Selection}
	if cfg.Expiry > 0 {
		args = append(args, "--timeout", strconv.FormatFloat(cfg.Expiry.Seconds(), 'f', -1, 64))
	}
	if cfg.Display != "" {
		args = append(args, "--display", cfg.Display)
	}

	cmd := exec.Command(exe, args...)
	cmd.Dir = "/"
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = detached()
	return cmd
}
