package transcribe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/mgpai22/vidscribe/internal/logging"
)

const (
	// DefaultWhisperModel is the model variant used unless configured otherwise.
	DefaultWhisperModel = "base"

	whisperModelBaseURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main"
)

// known whisper.cpp ggml model names
var whisperModels = map[string]bool{
	"tiny":           true,
	"tiny.en":        true,
	"base":           true,
	"base.en":        true,
	"small":          true,
	"small.en":       true,
	"medium":         true,
	"medium.en":      true,
	"large-v3":       true,
	"large-v3-turbo": true,
}

// ModelStore caches whisper.cpp ggml models on disk and downloads missing ones.
type ModelStore struct {
	dir     string
	baseURL string
	client  *http.Client
	logger  *logging.Logger
}

func NewModelStore(dir string, logger *logging.Logger) *ModelStore {
	return &ModelStore{
		dir:     dir,
		baseURL: whisperModelBaseURL,
		client:  http.DefaultClient,
		logger:  logger,
	}
}

// Path maps a model name to its file. Absolute paths and names ending in
// .bin are taken as file references as-is.
func (s *ModelStore) Path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	if strings.HasSuffix(name, ".bin") {
		return filepath.Join(s.dir, name)
	}
	return filepath.Join(s.dir, modelFileName(name))
}

func modelFileName(name string) string {
	name = strings.TrimPrefix(name, "ggml-")
	return "ggml-" + name + ".bin"
}

// Ensure returns the path of the named model, downloading it first when it
// is a known model that is not cached yet.
func (s *ModelStore) Ensure(ctx context.Context, name string) (string, error) {
	path := s.Path(name)
	if fileExists(path) {
		return path, nil
	}

	short := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(name), "ggml-"), ".bin")
	if filepath.IsAbs(name) || !whisperModels[short] {
		return "", fmt.Errorf("whisper model not found: %s", path)
	}

	if err := s.download(ctx, modelFileName(short), path); err != nil {
		return "", err
	}
	return path, nil
}

func (s *ModelStore) download(ctx context.Context, fileName, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("failed to create models directory: %w", err)
	}

	url := s.baseURL + "/" + fileName
	s.logger.Infow("Downloading whisper model", "url", url, "dest", destPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build model request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download model: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download model: HTTP %d", resp.StatusCode)
	}

	tmpPath := destPath + ".tmp"
	out, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	written, err := io.Copy(out, resp.Body)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write model file: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename model file: %w", err)
	}

	s.logger.Infow("Whisper model ready",
		"path", destPath,
		"size", humanize.Bytes(uint64(written)),
	)
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir() && info.Size() > 0
}
