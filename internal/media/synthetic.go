package media

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
)

// opusSilence is a single 20ms Opus frame of silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// SyntheticSource produces tracks without capture hardware: a silent Opus
// audio track and an idle VP8 video track. It lets the gateway negotiate and
// hold real peer connections on headless hosts.
type SyntheticSource struct {
	frame time.Duration
}

func NewSyntheticSource() *SyntheticSource {
	return &SyntheticSource{frame: 20 * time.Millisecond}
}

func (s *SyntheticSource) RegisterCodecs(m *webrtc.MediaEngine) error {
	return m.RegisterDefaultCodecs()
}

func (s *SyntheticSource) Acquire(ctx context.Context, c Constraints) (*Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	streamID := "local-" + uuid.NewString()
	var tracks []webrtc.TrackLocal
	var audio *webrtc.TrackLocalStaticSample

	if c.Audio {
		t, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", streamID)
		if err != nil {
			return nil, err
		}
		audio = t
		tracks = append(tracks, t)
	}
	if c.Video {
		t, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", streamID)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, t)
	}

	done := make(chan struct{})
	if audio != nil {
		go s.pumpSilence(audio, done)
	}
	return NewStream(tracks, func() { close(done) }), nil
}

// pumpSilence keeps RTP flowing so the remote side sees a live audio track.
// WriteSample before the track is bound is a no-op.
func (s *SyntheticSource) pumpSilence(t *webrtc.TrackLocalStaticSample, done <-chan struct{}) {
	ticker := time.NewTicker(s.frame)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			_ = t.WriteSample(pionmedia.Sample{Data: opusSilence, Duration: s.frame})
		}
	}
}
