//go:build !linux || !cgo

package media

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// DeviceSource is unavailable without the linux capture drivers.
type DeviceSource struct{}

func NewDeviceSource() (*DeviceSource, error) {
	return nil, ErrUnavailable
}

func (s *DeviceSource) RegisterCodecs(m *webrtc.MediaEngine) error {
	return ErrUnavailable
}

func (s *DeviceSource) Acquire(ctx context.Context, c Constraints) (*Stream, error) {
	return nil, ErrUnavailable
}
