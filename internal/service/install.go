// Package service installs the daemon as a user service.
package service

import (
	"time"
)

// ServiceStatus represents the status of the installed service
type ServiceStatus struct {
	Installed bool          `json:"installed"`
	Running   bool          `json:"running"`
	PID       int           `json:"pid,omitempty"`
	Uptime    time.Duration `json:"uptime,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// Installer interface for platform-specific service installation
type Installer interface {
	// Install installs the service
	Install() error

	// Uninstall removes the service
	Uninstall() error

	// IsInstalled checks if the service is installed
	IsInstalled() bool

	// Status returns the service status
	Status() (ServiceStatus, error)
}

// ErrNotInstalled is returned when the service is not installed
type ErrNotInstalled struct{}

func (e ErrNotInstalled) Error() string {
	return "service not installed"
}

// ErrAlreadyInstalled is returned when trying to install an already installed service
type ErrAlreadyInstalled struct{}

func (e ErrAlreadyInstalled) Error() string {
	return "service already installed"
}

// ErrUnsupported is returned on platforms without a service manager
// integration
type ErrUnsupported struct{}

func (e ErrUnsupported) Error() string {
	return "service management is only supported on Linux (systemd)"
}
