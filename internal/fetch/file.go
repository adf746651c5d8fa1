package fetch

import (
	"fmt"
	"os"
)

// ReadFile returns the text of a local playlist file. Every failure wraps
// ErrFileUnreadable.
func ReadFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFileUnreadable, err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFileUnreadable, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrFileUnreadable, path)
	}

	text, err := decodeBody(f, DefaultMaxBodyBytes)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFileUnreadable, err)
	}
	return text, nil
}
