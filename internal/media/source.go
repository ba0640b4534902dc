// Package media acquires the outbound video track: a local camera or RTSP
// stream through ffmpeg, or a pre-encoded IVF/H264 file.
package media

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	pion "github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"
)

// DefaultAcquireTimeout bounds the wait for the first encoded frame.
const DefaultAcquireTimeout = 10 * time.Second

// Source produces one outbound track.
type Source interface {
	Acquire(ctx context.Context) (pion.TrackLocal, error)
	Close() error
}

// Config selects and tunes a Source.
type Config struct {
	Camera    string
	VideoFile string
	RTSPURL   string
	// FFmpeg is the ffmpeg binary, "ffmpeg" when empty.
	FFmpeg     string
	Resolution string
	FPS        int

	AcquireTimeout time.Duration
}

func (c Config) frameDuration() time.Duration {
	if c.FPS <= 0 {
		return time.Second / 30
	}
	return time.Second / time.Duration(c.FPS)
}

func (c Config) acquireTimeout() time.Duration {
	if c.AcquireTimeout <= 0 {
		return DefaultAcquireTimeout
	}
	return c.AcquireTimeout
}

// Open picks the source for cfg: a video file, then an RTSP URL, then the
// local camera of the running OS.
func Open(cfg Config, log *logrus.Entry) (Source, error) {
	switch {
	case cfg.VideoFile != "":
		switch strings.ToLower(filepath.Ext(cfg.VideoFile)) {
		case ".ivf", ".h264", ".264":
			return NewFileSource(cfg.VideoFile, cfg.frameDuration(), log), nil
		}
		return NewFFmpegSource(cfg, fileInput(cfg.VideoFile), log), nil
	case cfg.RTSPURL != "":
		return NewFFmpegSource(cfg, rtspInput(cfg), log), nil
	}

	p, err := Current()
	if err != nil {
		return nil, err
	}
	return NewFFmpegSource(cfg, cameraInput(p, cfg), log), nil
}
