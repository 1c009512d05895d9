//go:build !linux && !windows

package service

type unsupportedService struct{}

// New creates a new platform-specific service manager
func New() Service {
	return &unsupportedService{}
}

func (s *unsupportedService) Install() error   { return ErrUnsupported }
func (s *unsupportedService) Uninstall() error { return ErrUnsupported }
func (s *unsupportedService) IsInstalled() bool {
	return false
}
func (s *unsupportedService) Status() (string, error) {
	return "not supported", nil
}
