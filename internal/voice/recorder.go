// Package voice records a spoken question, sends it through the backend's
// speech and answer endpoints, and plays the spoken answer.
package voice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrPermissionDenied is returned when the audio input cannot be acquired:
// no capture tool is installed, or it exits before recording anything.
var ErrPermissionDenied = errors.New("microphone access denied")

// DefaultSampleRate is the capture rate in Hz.
const DefaultSampleRate = 16000

// startGrace is how long a capture process must survive to count as started.
const startGrace = 200 * time.Millisecond

// Recorder acquires the audio input.
type Recorder interface {
	Start(ctx context.Context) (Capture, error)
}

// Capture is an in-progress recording.
type Capture interface {
	// Stop ends the recording and returns it as a WAV file.
	Stop() ([]byte, error)
}

// ExecRecorder captures 16-bit mono PCM from an external tool.
type ExecRecorder struct {
	// Tool is "arecord" or "ffmpeg". Empty picks the first one installed.
	Tool       string
	SampleRate int
}

// Start spawns the capture tool and begins buffering its output.
func (r *ExecRecorder) Start(ctx context.Context) (Capture, error) {
	rate := r.SampleRate
	if rate <= 0 {
		rate = DefaultSampleRate
	}

	tool, err := r.tool()
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, tool, captureArgs(tool, rate)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("capture pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start %s: %v", ErrPermissionDenied, tool, err)
	}

	c := &execCapture{cmd: cmd, rate: rate, done: make(chan struct{})}
	go c.read(stdout)

	select {
	case <-c.done:
		msg := strings.TrimSpace(stderr.String())
		if msg == "" && c.waitErr != nil {
			msg = c.waitErr.Error()
		}
		return nil, fmt.Errorf("%w: %s exited: %s", ErrPermissionDenied, tool, msg)
	case <-time.After(startGrace):
	}

	log.Printf("[VOICE]: recording with %s at %d Hz", tool, rate)
	return c, nil
}

func (r *ExecRecorder) tool() (string, error) {
	candidates := []string{"arecord", "ffmpeg"}
	if r.Tool != "" {
		candidates = []string{r.Tool}
	}
	for _, name := range candidates {
		if _, err := exec.LookPath(name); err == nil {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w: no capture tool found (tried %s)", ErrPermissionDenied, strings.Join(candidates, ", "))
}

func captureArgs(tool string, rate int) []string {
	sr := strconv.Itoa(rate)
	if tool == "ffmpeg" {
		return []string{
			"-loglevel", "error",
			"-f", "pulse", "-i", "default",
			"-ac", "1", "-ar", sr,
			"-f", "s16le", "-",
		}
	}
	return []string{"-q", "-t", "raw", "-f", "S16_LE", "-c", "1", "-r", sr}
}

type execCapture struct {
	cmd  *exec.Cmd
	rate int

	mu     sync.Mutex
	chunks [][]byte

	done    chan struct{}
	waitErr error
}

func (c *execCapture) read(r io.Reader) {
	defer close(c.done)
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			c.mu.Lock()
			c.chunks = append(c.chunks, chunk)
			c.mu.Unlock()
		}
		if err != nil {
			break
		}
	}
	c.waitErr = c.cmd.Wait()
}

// Stop interrupts the tool so it flushes, then packages every chunk
// received so far.
func (c *execCapture) Stop() ([]byte, error) {
	if c.cmd.Process != nil {
		c.cmd.Process.Signal(os.Interrupt)
	}
	select {
	case <-c.done:
	case <-time.After(2 * time.Second):
		c.cmd.Process.Kill()
		<-c.done
	}

	c.mu.Lock()
	pcm := bytes.Join(c.chunks, nil)
	c.chunks = nil
	c.mu.Unlock()

	if len(pcm) == 0 {
		return nil, errors.New("no audio captured")
	}
	return EncodeWAV(pcm, c.rate)
}
