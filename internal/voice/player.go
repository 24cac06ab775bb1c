package voice

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
)

// Player plays synthesized speech. Play must not wait for playback to end.
type Player interface {
	Play(audio []byte) error
}

// ExecPlayer plays audio with an external tool.
type ExecPlayer struct {
	// Tool is "ffplay", "mpg123" or "afplay". Empty picks the first installed.
	Tool string
}

// Play writes the audio to a temp file and starts the player on it. The
// file is removed once the player exits.
func (p *ExecPlayer) Play(audio []byte) error {
	tool, err := p.tool()
	if err != nil {
		return err
	}

	f, err := os.CreateTemp("", "copilot-*.mp3")
	if err != nil {
		return fmt.Errorf("create audio file: %w", err)
	}
	if _, err := f.Write(audio); err != nil {
		f.Close()
		os.Remove(f.Name())
		return fmt.Errorf("write audio file: %w", err)
	}
	f.Close()

	cmd := exec.Command(tool, playArgs(tool, f.Name())...)
	if err := cmd.Start(); err != nil {
		os.Remove(f.Name())
		return fmt.Errorf("start %s: %w", tool, err)
	}

	go func() {
		if err := cmd.Wait(); err != nil {
			log.Printf("[VOICE]: %s exited: %v", tool, err)
		}
		os.Remove(f.Name())
	}()
	return nil
}

func (p *ExecPlayer) tool() (string, error) {
	candidates := []string{"ffplay", "mpg123", "afplay"}
	if p.Tool != "" {
		candidates = []string{p.Tool}
	}
	for _, name := range candidates {
		if _, err := exec.LookPath(name); err == nil {
			return name, nil
		}
	}
	return "", fmt.Errorf("no audio player found (tried %s)", strings.Join(candidates, ", "))
}

func playArgs(tool, path string) []string {
	switch tool {
	case "ffplay":
		return []string{"-nodisp", "-autoexit", "-loglevel", "quiet", path}
	case "mpg123":
		return []string{"-q", path}
	default:
		return []string{path}
	}
}
