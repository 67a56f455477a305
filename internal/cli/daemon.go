package cli

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"waysock.dev/go/waysock/internal/client"
	"waysock.dev/go/waysock/internal/config"
	"waysock.dev/go/waysock/internal/daemon"
	"waysock.dev/go/waysock/internal/service"
)

var (
	daemonSocketName string
	daemonRuntimeDir string
	daemonWeb        bool
	daemonWebListen  string
)

func init() {
	rootCmd.AddCommand(daemonCmd)

	// Subcommands
	daemonCmd.AddCommand(daemonRunCmd)
	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	daemonCmd.AddCommand(daemonStatusCmd)
	daemonCmd.AddCommand(daemonInstallCmd)
	daemonCmd.AddCommand(daemonUninstallCmd)

	// Flags
	daemonRunCmd.Flags().StringVar(&daemonSocketName, "name", "", "fixed socket name (default: first free wayland-N)")
	daemonRunCmd.Flags().StringVar(&daemonRuntimeDir, "runtime-dir", "", "runtime directory (default: $XDG_RUNTIME_DIR)")
	daemonRunCmd.Flags().BoolVar(&daemonWeb, "web", false, "enable the loopback debug API")
	daemonRunCmd.Flags().StringVar(&daemonWebListen, "web-listen", "", "debug API listen address (default from config)")
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Daemon management commands",
	Long: `Control the waysock background daemon.

The daemon binds a display socket, accepts and tracks peer
connections, and answers inspection requests on its control socket.`,
}

var daemonRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run daemon in foreground",
	Long: `Run the daemon in the foreground.

This is typically used by service managers (systemd). For manual use,
prefer 'waysock daemon start'.`,
	RunE: runDaemonRun,
}

func runDaemonRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Flags override the config file
	if daemonSocketName != "" {
		cfg.Socket.Name = daemonSocketName
	}
	if daemonRuntimeDir != "" {
		cfg.Socket.RuntimeDir = daemonRuntimeDir
	}
	if daemonWeb {
		cfg.Web.Enabled = true
	}
	if daemonWebListen != "" {
		cfg.Web.Listen = daemonWebListen
	}
	if verboseLog {
		cfg.Logging.Level = "debug"
	}

	paths, err := config.GetPaths()
	if err != nil {
		return fmt.Errorf("get paths: %w", err)
	}

	d, err := daemon.New(&daemon.Options{
		Config:  cfg,
		Paths:   paths,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = d.Run(ctx)
	if errors.Is(err, daemon.ErrAlreadyRunning) {
		return fmt.Errorf("daemon is already running")
	}
	return err
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start daemon in background",
	Long: `Start the daemon in the background.

The daemon will continue running after this command exits.
Use 'waysock daemon status' to check if it's running.`,
	RunE: runDaemonStart,
}

func runDaemonStart(cmd *cobra.Command, args []string) error {
	if client.IsRunning() {
		fmt.Println("Daemon is already running.")
		return nil
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("get executable: %w", err)
	}

	runArgs := []string{"daemon", "run"}
	if cfgFile != "" {
		runArgs = append(runArgs, "--config", cfgFile)
	}

	daemonCmd := exec.Command(exe, runArgs...)
	daemonCmd.Stdout = os.Stdout
	daemonCmd.Stderr = os.Stderr

	if err := daemonCmd.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- daemonCmd.Wait()
	}()

	// Wait for the control socket to answer, or for the process to
	// exit early (bad config, contended runtime dir)
	timeout := time.After(10 * time.Second)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case err := <-done:
			if err != nil {
				return fmt.Errorf("daemon failed to start: %w", err)
			}
			return fmt.Errorf("daemon exited unexpectedly")

		case <-ticker.C:
			if client.IsRunning() {
				fmt.Printf("Daemon started (PID %d).\n", daemonCmd.Process.Pid)
				fmt.Println("Use 'waysock daemon status' for details.")
				return nil
			}

		case <-timeout:
			fmt.Println("Timeout waiting for daemon to start.")
			fmt.Println("The daemon process may still be running in the background.")
			return nil
		}
	}
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the daemon",
	RunE:  runDaemonStop,
}

func runDaemonStop(cmd *cobra.Command, args []string) error {
	// Prefer a graceful stop over the control socket
	if c, err := client.Connect(); err == nil {
		stopErr := c.Stop()
		c.Close()
		if stopErr == nil {
			for i := 0; i < 30; i++ {
				if !client.IsRunning() {
					fmt.Println("Daemon stopped.")
					return nil
				}
				time.Sleep(100 * time.Millisecond)
			}
			fmt.Println("Daemon acknowledged stop but is still running.")
			return nil
		}
	}

	// No control socket: fall back to the PID file
	paths, err := config.GetPaths()
	if err != nil {
		return fmt.Errorf("get paths: %w", err)
	}

	data, err := os.ReadFile(paths.PIDFile)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("Daemon is not running.")
			return nil
		}
		return fmt.Errorf("read PID file: %w", err)
	}

	pid, err := strconv.Atoi(string(data))
	if err != nil {
		return fmt.Errorf("parse PID: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process: %w", err)
	}

	fmt.Printf("Sending SIGTERM to daemon (PID %d)...\n", pid)
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("send signal: %w", err)
	}

	for i := 0; i < 30; i++ {
		if !client.IsRunning() {
			fmt.Println("Daemon stopped.")
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	fmt.Println("Daemon did not stop gracefully. Consider 'kill -9'.")
	return nil
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	RunE:  runDaemonStatus,
}

func runDaemonStatus(cmd *cobra.Command, args []string) error {
	c, err := client.Connect()
	if err != nil {
		fmt.Println("Daemon is not running.")
		return nil
	}
	defer c.Close()

	status, err := c.Status()
	if err != nil {
		return fmt.Errorf("get status: %w", err)
	}

	fmt.Println("Daemon Status")
	fmt.Println()
	fmt.Printf("  Running:     yes\n")
	fmt.Printf("  PID:         %d\n", status.PID)
	fmt.Printf("  Version:     %s\n", status.Version)
	fmt.Printf("  Uptime:      %s\n", status.Uptime)
	fmt.Printf("  Runtime dir: %s\n", status.RuntimeDir)
	fmt.Printf("  Display:     %s\n", status.Display)
	fmt.Printf("  Socket:      %s\n", status.DisplayPath)
	fmt.Printf("  Control:     %s\n", status.ControlPath)
	fmt.Printf("  Clients:     %d connected\n", status.Clients)
	if status.Subscribers > 0 {
		fmt.Printf("  Subscribers: %d\n", status.Subscribers)
	}

	return nil
}

var daemonInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Install daemon as user service",
	Long: `Install the daemon as a systemd user service.

The service starts the daemon automatically when you log in.`,
	RunE: runDaemonInstall,
}

func runDaemonInstall(cmd *cobra.Command, args []string) error {
	inst := service.NewInstaller()

	if err := inst.Install(); err != nil {
		if errors.As(err, &service.ErrAlreadyInstalled{}) {
			fmt.Println("Service is already installed.")
			fmt.Println("To reinstall, first run: waysock daemon uninstall")
			return nil
		}
		return err
	}

	fmt.Println("Service installed successfully.")
	fmt.Println()
	fmt.Println("To start the daemon now, run:")
	fmt.Println("  systemctl --user start waysock")
	fmt.Println()
	fmt.Println("To start it at every login:")
	fmt.Println("  systemctl --user enable waysock")

	return nil
}

var daemonUninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove daemon user service",
	RunE:  runDaemonUninstall,
}

func runDaemonUninstall(cmd *cobra.Command, args []string) error {
	inst := service.NewInstaller()

	if err := inst.Uninstall(); err != nil {
		if errors.As(err, &service.ErrNotInstalled{}) {
			fmt.Println("Service is not installed.")
			return nil
		}
		return err
	}

	fmt.Println("Service uninstalled successfully.")
	return nil
}
