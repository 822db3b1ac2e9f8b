// Package ffmpeg transcodes recorded WAV files into the upload format.
package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
)

// Options describes the target encoding.
type Options struct {
	Codec      string
	Channels   int
	SampleRate int
	BitRate    int // kbps
	Depth      int
}

// Args builds the ffmpeg argument list for converting inPath to outPath.
func Args(opts Options, inPath, outPath string) ([]string, error) {
	channels := opts.Channels
	if channels <= 0 {
		channels = 1
	}
	sr := opts.SampleRate
	if sr <= 0 {
		sr = 16000
	}
	bitrate := opts.BitRate
	if bitrate <= 0 {
		bitrate = 128
	}
	depth := opts.Depth
	if depth == 0 {
		depth = 16
	}

	ffCodec, hasBitrate := codecFor(opts.Codec)
	if ffCodec == "" {
		return nil, fmt.Errorf("unsupported codec: %s", opts.Codec)
	}

	args := []string{"-y", "-i", inPath, "-ac", strconv.Itoa(channels), "-ar", strconv.Itoa(sr), "-c:a", ffCodec}
	if !strings.HasPrefix(ffCodec, "pcm_") {
		if hasBitrate {
			args = append(args, "-b:a", fmt.Sprintf("%dk", bitrate))
		}
		if f := sampleFmt(depth); f != "" {
			args = append(args, "-sample_fmt", f)
		}
	}
	return append(args, outPath), nil
}

// Convert runs ffmpeg. The process is killed when ctx is canceled.
func Convert(ctx context.Context, logger *slog.Logger, opts Options, inPath, outPath string) error {
	args, err := Args(opts, inPath, outPath)
	if err != nil {
		return err
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("executing ffmpeg", "component", "ffmpeg", "args", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg failed: %w\n%s", err, stderr.String())
	}
	return nil
}

func sampleFmt(depth int) string {
	switch depth {
	case 8:
		return "u8"
	case 16:
		return "s16"
	case 24:
		return "s24"
	case 32:
		return "s32"
	}
	return ""
}

func codecFor(key string) (string, bool) {
	k := strings.ToLower(key)
	switch k {
	case "opus", "libopus":
		return "libopus", true
	case "mp3":
		return "libmp3lame", true
	case "vorbis", "libvorbis", "vorb":
		return "libvorbis", true
	case "amr":
		return "libopencore_amrnb", true
	case "adpcm":
		return "adpcm_ms", false
	case "pcm":
		return "pcm_s16le", false
	case "aac", "ac3", "eac3", "mp2", "mp1":
		return k, true
	case "wavpack", "flac", "alac":
		return k, false
	case "pcm_f32be", "pcm_f32le", "pcm_f64be", "pcm_f64le",
		"pcm_s16be", "pcm_s16le", "pcm_s24be", "pcm_s24le",
		"pcm_s32be", "pcm_s32le", "pcm_s64be", "pcm_s64le",
		"pcm_s8":
		return k, false
	}
	return "", false
}
