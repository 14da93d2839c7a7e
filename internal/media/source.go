// Package media provides the local audio/video tracks attached to a call.
package media

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
)

var (
	// ErrAccessDenied means capture was attempted and refused or failed.
	ErrAccessDenied = errors.New("media: could not access camera/microphone")
	// ErrUnavailable means the source cannot capture on this platform or build.
	ErrUnavailable = errors.New("media: capture unavailable")
)

// Constraints selects which tracks to capture. Audio is always requested for calls.
type Constraints struct {
	Audio bool
	Video bool
}

// Source acquires local tracks and declares the codecs those tracks produce.
type Source interface {
	Acquire(ctx context.Context, c Constraints) (*Stream, error)
	RegisterCodecs(m *webrtc.MediaEngine) error
}

// Stream is a set of captured local tracks. Stop releases the capture and
// is safe to call more than once.
type Stream struct {
	Tracks []webrtc.TrackLocal

	once sync.Once
	stop func()
}

func NewStream(tracks []webrtc.TrackLocal, stop func()) *Stream {
	return &Stream{Tracks: tracks, stop: stop}
}

func (s *Stream) Stop() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if s.stop != nil {
			s.stop()
		}
	})
}

// New builds the source named by MEDIA_SOURCE.
func New(kind string) (Source, error) {
	switch kind {
	case "", "synthetic":
		return NewSyntheticSource(), nil
	case "device":
		return NewDeviceSource()
	default:
		return nil, fmt.Errorf("media: unknown source %q", kind)
	}
}
