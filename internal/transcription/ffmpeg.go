package transcription

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

var codecArgs = map[string][]string{
	"flac": {"-acodec", "flac", "-ar", "16000"},
	"wav":  {"-acodec", "pcm_s16le", "-ar", "16000"},
	"mp3":  {"-acodec", "libmp3lame", "-q:a", "2"},
}

// FFmpegConverter converts audio by piping it through the ffmpeg binary.
type FFmpegConverter struct {
	Path string
}

func NewFFmpegConverter(path string) *FFmpegConverter {
	if strings.TrimSpace(path) == "" {
		path = "ffmpeg"
	}
	return &FFmpegConverter{Path: path}
}

// Args returns the ffmpeg command line used for format.
func (c *FFmpegConverter) Args(format string) ([]string, error) {
	codec, ok := codecArgs[format]
	if !ok {
		return nil, fmt.Errorf("transcription: unsupported format %q", format)
	}
	args := []string{"-i", "pipe:0", "-y", "-loglevel", "error"}
	args = append(args, codec...)
	args = append(args, "-f", format, "pipe:1")
	return args, nil
}

// Convert runs ffmpeg with stdin/stdout pipes. The process is killed when ctx ends.
func (c *FFmpegConverter) Convert(ctx context.Context, audio []byte, format string) ([]byte, error) {
	if len(audio) == 0 {
		return nil, errors.New("transcription: empty audio payload")
	}
	args, err := c.Args(format)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, c.Path, args...)
	cmd.Stdin = bytes.NewReader(audio)
	var out, errBuf bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errBuf
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("transcription: ffmpeg run: %w: %s", err, strings.TrimSpace(errBuf.String()))
	}
	if out.Len() == 0 {
		return nil, errors.New("transcription: ffmpeg produced empty output")
	}
	return out.Bytes(), nil
}
