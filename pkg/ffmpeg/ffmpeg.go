package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

// OpusStream transcodes any audio ffmpeg understands into 48kHz stereo Ogg/Opus,
// one 20ms packet per page, which is what discord voice expects frame by frame.
// The returned stream must be closed; closing early kills the ffmpeg process.
func (c *Client) OpusStream(ctx context.Context, in io.Reader) (io.ReadCloser, error) {
	ctx, cancel := context.WithCancel(ctx)

	args := []string{
		"-hide_banner", "-nostats", "-loglevel", "error",
		"-i", "pipe:0",
		"-vn",
	}

	if c.cfg != nil && c.cfg.Volume != 0 && c.cfg.Volume != 1 {
		args = append(args, "-af", "volume="+strconv.FormatFloat(c.cfg.Volume, 'f', -1, 64))
	}

	args = append(args,
		"-c:a", "libopus",
		"-b:a", "96k",
		"-ar", "48000",
		"-ac", "2",
		"-frame_duration", "20",
		"-page_duration", "20000",
		"-f", "ogg",
		"pipe:1",
	)

	cmd := exec.CommandContext(ctx, c.binary(), args...)
	cmd.Stdin = in

	s := &stream{
		cmd:    cmd,
		cancel: cancel,
	}
	cmd.Stderr = &s.stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open ffmpeg stdout: %w", err)
	}
	s.stdout = stdout

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	return s, nil
}

type stream struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	stdout io.ReadCloser
	stderr bytes.Buffer

	waitOnce sync.Once
	waitErr  error
}

// Read reports a failed transcode in place of io.EOF.
func (s *stream) Read(p []byte) (int, error) {
	n, err := s.stdout.Read(p)
	if errors.Is(err, io.EOF) {
		if werr := s.wait(); werr != nil {
			return n, fmt.Errorf("ffmpeg failed: %w: %s", werr, strings.TrimSpace(s.stderr.String()))
		}
	}
	return n, err
}

func (s *stream) Close() error {
	s.cancel()
	_ = s.wait()
	return nil
}

func (s *stream) wait() error {
	s.waitOnce.Do(func() {
		s.waitErr = s.cmd.Wait()
	})
	return s.waitErr
}
