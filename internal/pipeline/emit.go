package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dunamismax/pixelcut/internal/storage"
)

const pngContentType = "image/png"

// Emitter stores a finished PNG under a slash-separated name and reports
// where it ended up.
type Emitter interface {
	Emit(ctx context.Context, name string, data []byte) (string, error)
}

// JobOutputName is the name a job's result is emitted under.
func JobOutputName(jobID string) string {
	return path.Join(sanitizePathToken(jobID), "result.png")
}

// BatchOutputName maps an input file to processed_<stem>.png.
func BatchOutputName(inputPath string) string {
	base := filepath.Base(inputPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return "processed_" + stem + ".png"
}

type LocalFileEmitter struct {
	OutputDir string
}

func (e LocalFileEmitter) Emit(_ context.Context, name string, data []byte) (string, error) {
	if strings.TrimSpace(e.OutputDir) == "" {
		return "", errors.New("output directory is required")
	}
	if strings.TrimSpace(name) == "" {
		return "", errors.New("output name is required")
	}

	fullPath := filepath.Join(e.OutputDir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return "", fmt.Errorf("write output file: %w", err)
	}
	return fullPath, nil
}

type ObjectStoreEmitter struct {
	Storage      *storage.Client
	OutputPrefix string
}

func (e ObjectStoreEmitter) Emit(ctx context.Context, name string, data []byte) (string, error) {
	if e.Storage == nil {
		return "", errors.New("storage client is required")
	}
	if strings.TrimSpace(name) == "" {
		return "", errors.New("output name is required")
	}

	objectKey := path.Join(defaultOutputPrefix(e.OutputPrefix), name)
	if err := e.Storage.WriteObject(ctx, objectKey, data, pngContentType); err != nil {
		return "", err
	}
	return objectKey, nil
}

func defaultOutputPrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return "outputs"
	}
	return prefix
}

func sanitizePathToken(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "unknown"
	}

	var b strings.Builder
	b.Grow(len(in))
	for _, r := range in {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
