package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"waysock.dev/go/waysock/internal/client"
)

func init() {
	rootCmd.AddCommand(envCmd)
}

var envCmd = &cobra.Command{
	Use:   "env",
	Short: "Print shell environment for display clients",
	Long: `Print environment variables pointing clients at the daemon's
display socket. Add it to your shell session:

  # bash/zsh
  eval "$(waysock env)"

  # fish
  waysock env | source

The following variables are set:
  WAYLAND_DISPLAY  - Name of the bound display socket
  WAYSOCK_RUNNING  - Set to 1 if the daemon is running`,
	RunE: runEnv,
}

func runEnv(cmd *cobra.Command, args []string) error {
	display := ""
	if c, err := client.Connect(); err == nil {
		if status, err := c.Status(); err == nil {
			display = status.Display
		}
		c.Close()
	}

	for _, line := range envExports(display) {
		fmt.Println(line)
	}
	return nil
}

// envExports renders the shell export lines for a bound display name;
// an empty name means no daemon answered
func envExports(display string) []string {
	if display == "" {
		return []string{"export WAYSOCK_RUNNING=0"}
	}
	return []string{
		fmt.Sprintf("export WAYLAND_DISPLAY=%q", display),
		"export WAYSOCK_RUNNING=1",
	}
}
