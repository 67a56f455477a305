//go:build !linux

package service

type stubInstaller struct{}

// NewInstaller returns an installer that rejects every operation.
// Display sockets follow a Linux session convention, so service
// integration only exists for systemd.
func NewInstaller() Installer {
	return stubInstaller{}
}

func (stubInstaller) Install() error   { return ErrUnsupported{} }
func (stubInstaller) Uninstall() error { return ErrUnsupported{} }
func (stubInstaller) IsInstalled() bool {
	return false
}

func (stubInstaller) Status() (ServiceStatus, error) {
	return ServiceStatus{}, ErrUnsupported{}
}
