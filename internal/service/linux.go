//go:build linux

package service

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const systemdUserUnit = `[Unit]
Description=waysock display socket daemon
After=graphical-session.target

[Service]
Type=simple
ExecStart=%s daemon run
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target
`

type linuxInstaller struct {
	unitPath string
	execPath string
}

// NewInstaller returns a Linux-specific service installer
func NewInstaller() Installer {
	home, _ := os.UserHomeDir()
	configDir := filepath.Join(home, ".config", "systemd", "user")
	unitPath := filepath.Join(configDir, "waysock.service")

	execPath, _ := os.Executable()
	if execPath == "" {
		execPath = "/usr/local/bin/waysock"
	}

	return &linuxInstaller{
		unitPath: unitPath,
		execPath: execPath,
	}
}

func (i *linuxInstaller) Install() error {
	if i.IsInstalled() {
		return ErrAlreadyInstalled{}
	}

	dir := filepath.Dir(i.unitPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create systemd user dir: %w", err)
	}

	content := fmt.Sprintf(systemdUserUnit, i.execPath)
	if err := os.WriteFile(i.unitPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("write unit file: %w", err)
	}

	if err := exec.Command("systemctl", "--user", "daemon-reload").Run(); err != nil {
		return fmt.Errorf("systemctl daemon-reload: %w", err)
	}

	return nil
}

func (i *linuxInstaller) Uninstall() error {
	if !i.IsInstalled() {
		return ErrNotInstalled{}
	}

	exec.Command("systemctl", "--user", "stop", "waysock").Run()
	exec.Command("systemctl", "--user", "disable", "waysock").Run()

	if err := os.Remove(i.unitPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove unit file: %w", err)
	}

	exec.Command("systemctl", "--user", "daemon-reload").Run()

	return nil
}

func (i *linuxInstaller) IsInstalled() bool {
	_, err := os.Stat(i.unitPath)
	return err == nil
}

func (i *linuxInstaller) Status() (ServiceStatus, error) {
	status := ServiceStatus{}

	if !i.IsInstalled() {
		return status, nil
	}
	status.Installed = true

	cmd := exec.Command("systemctl", "--user", "is-active", "waysock")
	output, _ := cmd.Output()
	status.Running = strings.TrimSpace(string(output)) == "active"

	if status.Running {
		pidCmd := exec.Command("systemctl", "--user", "show", "waysock", "--property=MainPID", "--value")
		pidOutput, _ := pidCmd.Output()
		if pid, err := strconv.Atoi(strings.TrimSpace(string(pidOutput))); err == nil {
			status.PID = pid
		}

		uptimeCmd := exec.Command("systemctl", "--user", "show", "waysock", "--property=ActiveEnterTimestamp", "--value")
		uptimeOutput, _ := uptimeCmd.Output()
		if t, err := time.Parse("Mon 2006-01-02 15:04:05 MST", strings.TrimSpace(string(uptimeOutput))); err == nil {
			status.Uptime = time.Since(t)
		}
	}

	return status, nil
}
