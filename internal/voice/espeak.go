package voice

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Espeak shells out to espeak-ng, which writes a WAV file itself.
type Espeak struct {
	bin   string
	voice string
}

// NewEspeak fails when neither espeak-ng nor espeak is on PATH.
func NewEspeak(voice string) (*Espeak, error) {
	for _, name := range []string{"espeak-ng", "espeak"} {
		if bin, err := exec.LookPath(name); err == nil {
			return &Espeak{bin: bin, voice: voice}, nil
		}
	}
	return nil, fmt.Errorf("espeak-ng: %w", exec.ErrNotFound)
}

func (e *Espeak) Synthesize(ctx context.Context, text, dir string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}

	path := filepath.Join(dir, outputName(time.Now(), "wav"))
	args := []string{"-w", path}
	if e.voice != "" {
		args = append(args, "-v", e.voice)
	}
	args = append(args, "--", text)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.bin, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("espeak: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return path, nil
}
