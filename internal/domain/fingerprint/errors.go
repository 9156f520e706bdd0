package fingerprint

import "errors"

var (
	ErrNoFrames          = errors.New("no frames extracted from video")
	ErrNoFeatures        = errors.New("no features extracted from controls")
	ErrFFmpegUnavailable = errors.New("ffmpeg not available")
	ErrNoInput           = errors.New("shard has no readable content of this kind")
)
