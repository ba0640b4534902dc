package media

import (
	"runtime"

	"camclient/native/internal/domain"
)

// Platform is the ffmpeg input convention for local cameras on one OS.
type Platform struct {
	OS            string
	Format        string
	DefaultCamera string
	prefix        string
}

var platforms = map[string]Platform{
	"windows": {OS: "Windows", Format: "dshow", DefaultCamera: "Integrated Camera", prefix: "video="},
	"linux":   {OS: "Linux", Format: "v4l2", DefaultCamera: "/dev/video0"},
}

// Locator returns the ffmpeg input for camera, or for the default camera
// when camera is empty.
func (p Platform) Locator(camera string) string {
	if camera == "" {
		camera = p.DefaultCamera
	}
	return p.prefix + camera
}

// Detect returns the camera convention for goos.
func Detect(goos string) (Platform, error) {
	p, ok := platforms[goos]
	if !ok {
		return Platform{}, &domain.UnsupportedPlatformError{OS: osName(goos)}
	}
	return p, nil
}

// Current returns the convention of the running OS.
func Current() (Platform, error) {
	return Detect(runtime.GOOS)
}

func osName(goos string) string {
	if goos == "darwin" {
		return "MacOS"
	}
	return goos
}
