package prompt

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// Instructions is the operator-editable text appended to every prompt.
type Instructions struct {
	path string
}

// NewInstructions returns Instructions stored at path.
func NewInstructions(path string) *Instructions {
	return &Instructions{path: path}
}

// Path returns the backing file location.
func (in *Instructions) Path() string { return in.path }

// Read returns the current instructions. A missing file reads as empty.
func (in *Instructions) Read() (string, error) {
	data, err := os.ReadFile(in.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("prompt: read %q: %w", in.path, err)
	}
	return string(data), nil
}

// Write replaces the instructions with text.
func (in *Instructions) Write(text string) error {
	if err := os.WriteFile(in.path, []byte(text), 0o644); err != nil {
		return fmt.Errorf("prompt: write %q: %w", in.path, err)
	}
	return nil
}
