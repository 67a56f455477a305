package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"waysock.dev/go/waysock/internal/client"
	"waysock.dev/go/waysock/internal/display"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon and display socket status",
	Long: `Display the daemon state and a survey of display names in the
runtime directory: which names are live, which are stale leftovers,
and which are free.

Examples:
  waysock status`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	dir, err := display.RuntimeDir()
	if err != nil {
		return err
	}

	c, err := client.Connect()
	if err != nil {
		fmt.Println("Daemon:      not running")
	} else {
		status, statusErr := c.Status()
		c.Close()
		if statusErr != nil {
			return fmt.Errorf("get status: %w", statusErr)
		}
		fmt.Printf("Daemon:      running (PID %d, uptime %s)\n", status.PID, status.Uptime)
		fmt.Printf("Display:     %s\n", status.Display)
		fmt.Printf("Clients:     %d connected\n", status.Clients)
	}
	fmt.Printf("Runtime dir: %s\n", dir)
	fmt.Println()

	// Survey the conventional names. Free names without artifacts are
	// uninteresting; show wayland-0 always since clients default to it.
	fmt.Println("Display names")
	shown := 0
	survey := func(name string) {
		state, err := client.ProbeName(dir, name)
		if err != nil {
			fmt.Printf("  ⚠ %-12s probe failed: %v\n", name, err)
			shown++
			return
		}
		if state == client.ProbeFree && name != client.DefaultDisplay {
			return
		}
		marker := "✓"
		if state == client.ProbeStale {
			marker = "⚠"
		}
		fmt.Printf("  %s %-12s %s\n", marker, name, state)
		shown++
	}

	survey(client.DefaultDisplay)
	for name := range display.Candidates() {
		survey(name)
	}

	if shown <= 1 {
		fmt.Println("  (no numbered names in use)")
	}

	return nil
}
