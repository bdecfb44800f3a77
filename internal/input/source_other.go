//go:build !linux

package input

// StubSource is used on platforms without a capture backend.
type StubSource struct {
	BaseSource
}

func newPlatformSource(sourceOptions) Source {
	return &StubSource{}
}

// Available returns false on unsupported platforms.
func (s *StubSource) Available() (bool, string) {
	return false, "input capture not implemented for this platform"
}

// Start returns an error on unsupported platforms.
func (s *StubSource) Start(sink chan<- Event) error {
	return ErrNotAvailable
}

// Stop is a no-op on unsupported platforms.
func (s *StubSource) Stop() error {
	return nil
}

var _ Availability = (*StubSource)(nil)
