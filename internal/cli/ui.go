package cli

import (
	"fmt"
	"os/exec"
	"runtime"

	"github.com/spf13/cobra"

	"waysock.dev/go/waysock/internal/client"
)

var uiNoOpen bool

func init() {
	rootCmd.AddCommand(uiCmd)

	uiCmd.Flags().BoolVar(&uiNoOpen, "no-open", false, "don't open browser, just print URL")
}

var uiCmd = &cobra.Command{
	Use:   "ui",
	Short: "Open the debug web API",
	Long: `Open the daemon's loopback debug API in your default browser.

The API exposes read-only JSON views of the daemon:
- /api/status   daemon state and the bound display name
- /api/clients  connected display clients
- /api/metrics  counters and session statistics
- /api/logs     buffered log entries
- /ws           live event feed over WebSocket

The API is disabled by default; enable it with [web] enabled = true
in the config file or 'waysock daemon run --web'.`,
	RunE: runUI,
}

func runUI(cmd *cobra.Command, args []string) error {
	if err := client.RequireDaemon(); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if !cfg.Web.Enabled {
		return fmt.Errorf("debug API is disabled; enable it with [web] enabled = true or --web")
	}

	url := fmt.Sprintf("http://%s", cfg.Web.Listen)

	if uiNoOpen {
		fmt.Printf("Debug API: %s\n", url)
		return nil
	}

	fmt.Printf("Opening %s in browser...\n", url)

	if err := openBrowser(url); err != nil {
		fmt.Printf("Failed to open browser: %v\n", err)
		fmt.Printf("Open manually: %s\n", url)
	}

	return nil
}

// openBrowser opens the specified URL in the default browser
func openBrowser(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		if _, err := exec.LookPath("xdg-open"); err == nil {
			cmd = exec.Command("xdg-open", url)
		} else if _, err := exec.LookPath("firefox"); err == nil {
			cmd = exec.Command("firefox", url)
		} else {
			return fmt.Errorf("no browser found")
		}
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	return cmd.Start()
}
