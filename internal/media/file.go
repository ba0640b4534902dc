package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"camclient/native/internal/domain"

	pion "github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/h264reader"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/sirupsen/logrus"
)

var ivfCodecs = map[string]string{
	"VP80": pion.MimeTypeVP8,
	"VP90": pion.MimeTypeVP9,
	"AV01": pion.MimeTypeAV1,
}

// FileSource plays a pre-encoded IVF or H264 Annex-B file in a loop,
// paced at the file's frame rate.
type FileSource struct {
	path  string
	frame time.Duration
	log   *logrus.Entry

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewFileSource creates a source for path. frame paces H264 files, IVF files
// carry their own timebase.
func NewFileSource(path string, frame time.Duration, log *logrus.Entry) *FileSource {
	return &FileSource{path: path, frame: frame, log: log}
}

// frameReader yields the next sample of an open file.
type frameReader interface {
	next() (media.Sample, error)
}

// Acquire validates the file and starts playback.
func (s *FileSource) Acquire(ctx context.Context) (pion.TrackLocal, error) {
	mimeType, err := s.probe()
	if err != nil {
		return nil, &domain.MediaAcquisitionError{Locator: s.path, Cause: err}
	}

	track, err := pion.NewTrackLocalStaticSample(
		pion.RTPCodecCapability{MimeType: mimeType, ClockRate: 90000},
		"video", "camclient",
	)
	if err != nil {
		return nil, &domain.MediaAcquisitionError{Locator: s.path, Cause: err}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		s.play(runCtx, track)
	}()

	s.log.Infof("playing %s as %s", s.path, mimeType)
	return track, nil
}

// probe opens the file once to find its codec.
func (s *FileSource) probe() (string, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if !isIVF(s.path) {
		r, err := h264reader.NewReader(f)
		if err != nil {
			return "", err
		}
		if _, err := r.NextNAL(); err != nil {
			return "", fmt.Errorf("read first NAL: %w", err)
		}
		return pion.MimeTypeH264, nil
	}

	_, header, err := ivfreader.NewWith(f)
	if err != nil {
		return "", err
	}
	mimeType, ok := ivfCodecs[header.FourCC]
	if !ok {
		return "", fmt.Errorf("unsupported IVF codec %q", header.FourCC)
	}
	return mimeType, nil
}

func (s *FileSource) open() (io.Closer, frameReader, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, nil, err
	}

	if !isIVF(s.path) {
		r, err := h264reader.NewReader(f)
		if err != nil {
			f.Close()
			return nil, nil, err
		}
		return f, &h264Frames{r: r, frame: s.frame}, nil
	}

	r, header, err := ivfreader.NewWith(f)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return f, &ivfFrames{r: r, frame: ivfFrameDuration(header, s.frame)}, nil
}

func (s *FileSource) play(ctx context.Context, track *pion.TrackLocalStaticSample) {
	for ctx.Err() == nil {
		f, frames, err := s.open()
		if err != nil {
			s.log.Warnf("open %s: %v", s.path, err)
			return
		}
		err = s.playOnce(ctx, track, frames)
		f.Close()
		if err != nil {
			if ctx.Err() == nil {
				s.log.Warnf("play %s: %v", s.path, err)
			}
			return
		}
		s.log.Debugf("rewinding %s", s.path)
	}
}

// playOnce streams frames until the end of the file. It returns nil at EOF.
func (s *FileSource) playOnce(ctx context.Context, track *pion.TrackLocalStaticSample, frames frameReader) error {
	var pace <-chan time.Time
	for {
		sample, err := frames.next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		if sample.Duration > 0 {
			if pace != nil {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-pace:
				}
			}
			pace = time.After(sample.Duration)
		}

		if err := track.WriteSample(sample); err != nil {
			return err
		}
	}
}

// Close stops playback.
func (s *FileSource) Close() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

func isIVF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".ivf")
}

func ivfFrameDuration(h *ivfreader.IVFFileHeader, fallback time.Duration) time.Duration {
	if h.TimebaseDenominator == 0 || h.TimebaseNumerator == 0 {
		return fallback
	}
	return time.Duration(float64(h.TimebaseNumerator) / float64(h.TimebaseDenominator) * float64(time.Second))
}

type h264Frames struct {
	r     *h264reader.H264Reader
	frame time.Duration
}

func (h *h264Frames) next() (media.Sample, error) {
	nal, err := h.r.NextNAL()
	if err != nil {
		return media.Sample{}, err
	}
	return media.Sample{Data: nal.Data, Duration: nalDuration(nal, h.frame)}, nil
}

type ivfFrames struct {
	r     *ivfreader.IVFReader
	frame time.Duration
}

func (v *ivfFrames) next() (media.Sample, error) {
	data, _, err := v.r.ParseNextFrame()
	if err != nil {
		return media.Sample{}, err
	}
	return media.Sample{Data: data, Duration: v.frame}, nil
}
