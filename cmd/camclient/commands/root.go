package commands

import (
	"context"
	"os"
	ossignal "os/signal"
	"syscall"

	"camclient/native/internal/config"
	"camclient/native/internal/logger"
	"camclient/native/internal/media"
	"camclient/native/internal/publisher"
	sigclient "camclient/native/internal/signal"
	"camclient/native/internal/supervisor"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const longHelp = `camclient - Publish a local camera to a remote viewer via WebRTC

The camera (or a video file, or an RTSP stream) is encoded with ffmpeg and
streamed over a WebRTC session negotiated with a single offer/answer
exchange against the signaling URL. Lost sessions are rebuilt after the
reconnect delay.

Every flag can also be set with a CAMCLIENT_* environment variable
(CAMCLIENT_URL, CAMCLIENT_RECONNECT_DELAY, ...), a .env file, or a
camclient.{toml,yaml,json} file in --datadir.

Examples:
  # Publish the default camera
  camclient --url http://signal.local:9000/offer

  # Replay a file, forcing H264 and authenticating
  camclient --video-file demo.h264 --force-h264 --username cam --password secret`

// RootCmd is the camclient command.
var RootCmd = NewRootCmd()

// NewRootCmd returns the root command with its flags.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "camclient",
		Short: "Publish a camera over WebRTC",
		Long:  longHelp,
		Args:  cobra.NoArgs,
		RunE:  run,
	}
	AddFlags(cmd)
	return cmd
}

// AddFlags registers every configuration flag on cmd.
func AddFlags(cmd *cobra.Command) {
	d := config.Default()
	f := cmd.Flags()

	// Signaling
	f.String("url", d.URL, "Signaling URL (http(s):// for POST, ws(s):// for WebSocket)")
	f.String("key", d.Key, "Routing key appended to the signaling URL")
	f.String("username", d.Username, "Basic auth username")
	f.String("password", d.Password, "Basic auth password")
	f.String("model-id", d.ModelID, "Model id sent with the offer")
	f.Duration("signal-timeout", d.SignalTimeout, "Timeout of one offer/answer exchange")

	// WebRTC
	f.Bool("force-h264", d.ForceH264, "Only offer H264")
	f.StringSlice("ice-server", d.ICEServers, "STUN/TURN server URL, repeatable")
	f.Duration("heartbeat", d.Heartbeat, "Time between rtt probes")

	// Media
	f.String("resolution", d.Resolution, "Video resolution for transmitting")
	f.Int("fps", d.FPS, "Frames per second")
	f.String("camera", d.Camera, "Camera device (default depends on the OS)")
	f.String("video-file", d.VideoFile, "Stream a video file instead of the camera")
	f.String("rtsp-url", d.RTSPURL, "Stream an RTSP source instead of the camera")
	f.String("ffmpeg", d.FFmpeg, "ffmpeg binary")

	// Reconnect
	f.Duration("reconnect-delay", d.ReconnectDelay, "Delay before rebuilding a lost session")
	f.String("reconnect-backoff", d.ReconnectBackoff, "fixed or exponential")
	f.Duration("reconnect-max-delay", d.ReconnectMaxDelay, "Upper bound of the exponential backoff")
	f.Int("max-attempts", d.MaxAttempts, "Consecutive failed reconnects before giving up, 0 for never")

	// Process
	f.String("log", d.LogLevel, "debug, info, warn, error")
	f.String("log-file", d.LogFile, "Also write logs to this file")
	f.String("datadir", d.DataDir, "Directory holding the config file and relative video files")
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}

	l := logger.New(cfg.LogLevel, cfg.LogFile)
	log := logger.For(l, "main")
	log.WithFields(logrus.Fields{
		"url":        cfg.Endpoint(),
		"resolution": cfg.Resolution,
		"fps":        cfg.FPS,
		"force_h264": cfg.ForceH264,
		"reconnect":  cfg.ReconnectDelay,
		"backoff":    cfg.ReconnectBackoff,
	}).Debug("RUN")

	policy, err := supervisor.ParsePolicy(cfg.ReconnectBackoff, cfg.ReconnectDelay, cfg.ReconnectMaxDelay)
	if err != nil {
		return err
	}

	source, err := media.Open(cfg.Media(), logger.For(l, "media"))
	if err != nil {
		log.Error(err)
		return err
	}

	exchanger := sigclient.NewExchanger(cfg.Endpoint(), cfg.SignalTimeout, logger.For(l, "signal"))

	p := publisher.New(source, exchanger, publisher.Options{
		Endpoint:          cfg.Endpoint(),
		Credentials:       cfg.Credentials(),
		Metadata:          cfg.Metadata(),
		ForceH264:         cfg.ForceH264,
		ICEServers:        cfg.ICEServers,
		HeartbeatInterval: cfg.Heartbeat,
		Supervisor: supervisor.Config{
			Policy:      policy,
			MaxAttempts: cfg.MaxAttempts,
		},
	}, logger.For(l, "publisher"))

	ctx, stop := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stopWatch := context.AfterFunc(ctx, func() {
		log.Info("received signal, shutting down")
		p.Shutdown()
	})
	defer stopWatch()

	if err := p.Run(ctx); err != nil {
		log.Error(err)
		return err
	}
	return nil
}
