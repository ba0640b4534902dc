package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"camclient/native/internal/domain"

	pion "github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/h264reader"
	"github.com/sirupsen/logrus"
)

const (
	rtBufferSize   = "2M"
	encoderBufSize = "1000k"
	probeSize      = "10000000"
	stderrTail     = 4096
)

var errNoFrame = errors.New("no frame before timeout")

// Input is an ffmpeg input: the options preceding -i and the locator.
type Input struct {
	Locator string
	Options []string
}

func cameraInput(p Platform, cfg Config) Input {
	opts := []string{"-f", p.Format, "-rtbufsize", rtBufferSize}
	if cfg.Resolution != "" {
		opts = append(opts, "-video_size", cfg.Resolution)
	}
	if cfg.FPS > 0 {
		opts = append(opts, "-framerate", strconv.Itoa(cfg.FPS))
	}
	return Input{Locator: p.Locator(cfg.Camera), Options: opts}
}

func rtspInput(cfg Config) Input {
	opts := []string{
		"-rtsp_transport", "tcp",
		"-analyzeduration", probeSize,
		"-probesize", probeSize,
	}
	if cfg.FPS > 0 {
		opts = append(opts, "-r", strconv.Itoa(cfg.FPS))
	}
	return Input{Locator: cfg.RTSPURL, Options: opts}
}

func fileInput(path string) Input {
	return Input{Locator: path, Options: []string{"-re"}}
}

// FFmpegSource encodes an ffmpeg input to H264 and feeds the NAL units to a
// sample track.
type FFmpegSource struct {
	cfg   Config
	input Input
	log   *logrus.Entry

	stderr *tailBuffer

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewFFmpegSource creates a source reading input. Nothing is started until
// Acquire.
func NewFFmpegSource(cfg Config, input Input, log *logrus.Entry) *FFmpegSource {
	return &FFmpegSource{
		cfg:    cfg,
		input:  input,
		log:    log,
		stderr: &tailBuffer{max: stderrTail},
	}
}

// Args returns the ffmpeg command line without the binary.
func (s *FFmpegSource) Args() []string {
	args := []string{"-hide_banner", "-loglevel", "warning"}
	args = append(args, s.input.Options...)
	args = append(args, "-i", s.input.Locator,
		"-an",
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-tune", "zerolatency",
		"-bufsize", encoderBufSize,
		"-pix_fmt", "yuv420p",
	)
	if s.cfg.Resolution != "" {
		args = append(args, "-s", s.cfg.Resolution)
	}
	if s.cfg.FPS > 0 {
		args = append(args, "-r", strconv.Itoa(s.cfg.FPS))
	}
	return append(args, "-f", "h264", "pipe:1")
}

func (s *FFmpegSource) binary() string {
	if s.cfg.FFmpeg == "" {
		return "ffmpeg"
	}
	return s.cfg.FFmpeg
}

// Acquire starts ffmpeg and returns the track once the first NAL unit has
// been read.
func (s *FFmpegSource) Acquire(ctx context.Context) (pion.TrackLocal, error) {
	track, err := pion.NewTrackLocalStaticSample(
		pion.RTPCodecCapability{MimeType: pion.MimeTypeH264, ClockRate: 90000},
		"video", "camclient",
	)
	if err != nil {
		return nil, s.fail(err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(runCtx, s.binary(), s.Args()...)
	cmd.Stderr = s.stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, s.fail(err)
	}

	s.log.Debugf("%s %v", s.binary(), s.Args())
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, s.fail(fmt.Errorf("start ffmpeg: %w", err))
	}

	done := make(chan struct{})
	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	first := make(chan error, 1)
	go func() {
		defer close(done)
		err := streamH264(stdout, track, s.cfg.frameDuration(), first)
		werr := cmd.Wait()
		if runCtx.Err() != nil {
			return
		}
		if werr != nil {
			s.log.Warnf("ffmpeg exited: %v", werr)
		} else if err != nil && !errors.Is(err, io.EOF) {
			s.log.Warnf("read ffmpeg output: %v", err)
		} else {
			s.log.Info("ffmpeg stream ended")
		}
	}()

	timer := time.NewTimer(s.cfg.acquireTimeout())
	defer timer.Stop()

	select {
	case err := <-first:
		if err == nil {
			s.log.Infof("media acquired from %s", s.input.Locator)
			return track, nil
		}
		s.Close()
		return nil, s.fail(err)
	case <-timer.C:
		s.Close()
		return nil, s.fail(errNoFrame)
	case <-ctx.Done():
		s.Close()
		return nil, s.fail(ctx.Err())
	}
}

func (s *FFmpegSource) fail(cause error) error {
	if tail := strings.TrimSpace(s.stderr.String()); tail != "" {
		cause = fmt.Errorf("%w: %s", cause, tail)
	}
	return &domain.MediaAcquisitionError{Locator: s.input.Locator, Cause: cause}
}

// Close stops ffmpeg and waits for the reader to exit.
func (s *FFmpegSource) Close() error {
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

// streamH264 writes every NAL unit of an Annex-B stream to track. The first
// read result is reported on first.
func streamH264(r io.Reader, track *pion.TrackLocalStaticSample, frame time.Duration, first chan<- error) error {
	reader, err := h264reader.NewReader(r)
	if err != nil {
		first <- err
		return err
	}

	reported := false
	for {
		nal, err := reader.NextNAL()
		if !reported {
			first <- err
			reported = true
		}
		if err != nil {
			return err
		}

		if err := track.WriteSample(media.Sample{Data: nal.Data, Duration: nalDuration(nal, frame)}); err != nil {
			return err
		}
	}
}

// nalDuration advances the timestamp on picture slices only, so parameter
// sets share the timestamp of the frame that follows them.
func nalDuration(nal *h264reader.NAL, frame time.Duration) time.Duration {
	switch nal.UnitType {
	case h264reader.NalUnitTypeCodedSliceIdr, h264reader.NalUnitTypeCodedSliceNonIdr:
		return frame
	}
	return 0
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if len(b.buf) > b.max {
		b.buf = b.buf[len(b.buf)-b.max:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
