package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"waysock.dev/go/waysock/internal/client"
	"waysock.dev/go/waysock/internal/config"
	"waysock.dev/go/waysock/internal/display"
)

var doctorFix bool

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().BoolVar(&doctorFix, "fix", false, "automatically fix issues (e.g., remove stale artifacts)")
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check waysock health",
	Long: `Run health checks on your waysock setup.

Checks the runtime directory, the config file, the daemon, and every
display name in the runtime directory for stale leftovers.

Use --fix to remove stale socket and lock files automatically. Only
names whose lock is not held by any live process are touched.`,
	RunE: runDoctor,
}

func runDoctor(cmd *cobra.Command, args []string) error {
	fmt.Printf("waysock v%s\n\n", version)

	// Runtime directory
	fmt.Println("Runtime directory")
	dir, err := display.RuntimeDir()
	if err != nil {
		fmt.Printf("  ❌ %v\n", err)
		fmt.Println("     Set XDG_RUNTIME_DIR to an absolute path (usually /run/user/$UID)")
		return nil
	}
	fmt.Printf("  ✓ %s\n", dir)

	info, err := os.Stat(dir)
	switch {
	case err != nil:
		fmt.Printf("  ❌ Not accessible: %v\n", err)
	case !info.IsDir():
		fmt.Println("  ❌ Not a directory")
	case info.Mode().Perm()&0077 != 0:
		fmt.Printf("  ⚠ Permissions %04o are looser than 0700\n", info.Mode().Perm())
	default:
		fmt.Println("  ✓ Private (mode 0700)")
	}
	fmt.Println()

	// Configuration
	fmt.Println("Configuration")
	paths, err := config.GetPaths()
	if err != nil {
		fmt.Printf("  ❌ Failed to get paths: %v\n", err)
	} else {
		fmt.Printf("  Config file: %s\n", paths.ConfigFile)
		if _, err := os.Stat(paths.ConfigFile); os.IsNotExist(err) {
			fmt.Println("    (not created yet, using defaults)")
		} else if cfg, err := config.LoadFrom(paths.ConfigFile); err != nil {
			fmt.Printf("  ❌ Failed to load: %v\n", err)
		} else if err := cfg.Validate(); err != nil {
			fmt.Printf("  ❌ Invalid: %v\n", err)
		} else {
			fmt.Println("  ✓ Valid")
		}
	}
	fmt.Println()

	// Daemon
	fmt.Println("Daemon")
	if client.IsRunning() {
		c, err := client.Connect()
		if err != nil {
			fmt.Printf("  ⚠ Running but could not connect: %v\n", err)
		} else {
			status, err := c.Status()
			c.Close()
			if err != nil {
				fmt.Printf("  ⚠ Running but could not get status: %v\n", err)
			} else {
				fmt.Printf("  ✓ Running (PID %d, uptime %s)\n", status.PID, status.Uptime)
				fmt.Printf("  ✓ Display: %s\n", status.Display)
				fmt.Printf("  ✓ Clients: %d connected\n", status.Clients)
			}
		}
	} else {
		fmt.Println("  ⚠ Not running")
		fmt.Println("    Start with: waysock daemon start")
	}
	fmt.Println()

	// Display names
	fmt.Println("Display names")
	issues := 0
	check := func(name string) {
		state, err := client.ProbeName(dir, name)
		if err != nil {
			fmt.Printf("  ⚠ %s: probe failed: %v\n", name, err)
			issues++
			return
		}

		switch state {
		case client.ProbeLive:
			fmt.Printf("  ✓ %s: live\n", name)
		case client.ProbeStale:
			issues++
			fmt.Printf("  ❌ %s: stale artifacts\n", name)
			if doctorFix {
				fixStaleName(dir, name)
			} else {
				fmt.Println("     Run 'waysock doctor --fix' to remove them")
			}
		}
	}

	check(client.DefaultDisplay)
	check(config.ControlSocketName)
	for name := range display.Candidates() {
		check(name)
	}

	if issues == 0 {
		fmt.Println("  ✓ No stale artifacts")
	}

	return nil
}

// fixStaleName removes the socket and lock files for a name whose
// owner is gone. Probing already established that no live process
// holds the lock, so removal cannot disturb a running server.
func fixStaleName(dir, name string) {
	bindPath, lockPath := display.SocketPaths(dir, name)
	for _, p := range []string{bindPath, lockPath} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			fmt.Printf("     ❌ Failed to remove %s: %v\n", filepath.Base(p), err)
			return
		}
	}
	fmt.Println("     ✓ Removed stale artifacts")
}
