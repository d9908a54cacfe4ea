package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mgpai22/vidscribe/internal/config"
	"github.com/mgpai22/vidscribe/internal/logging"
	"github.com/mgpai22/vidscribe/internal/scribe"
	"github.com/mgpai22/vidscribe/internal/subtitle"
	"github.com/mgpai22/vidscribe/internal/transcribe"
)

type stubRecognizer struct {
	result *transcribe.Result
	err    error
	closed bool
}

func (s *stubRecognizer) Transcribe(ctx context.Context, mediaPath string) (*transcribe.Result, error) {
	return s.result, s.err
}

func (s *stubRecognizer) Name() string { return "stub" }

func (s *stubRecognizer) Close() error {
	s.closed = true
	return nil
}

type harness struct {
	media  string
	outDir string
	calls  int
	rec    *stubRecognizer
	facErr error
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("VIDSCRIBE_CONFIG", filepath.Join(dir, "missing.toml"))
	t.Setenv("VIDSCRIBE_MODELS_DIR", filepath.Join(dir, "models"))
	t.Setenv("VIDSCRIBE_ENGINE", "")

	media := filepath.Join(dir, "talk.mp4")
	if err := os.WriteFile(media, []byte("media"), 0644); err != nil {
		t.Fatalf("write media: %v", err)
	}
	outDir := filepath.Join(dir, "subs")
	if err := os.Mkdir(outDir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	return &harness{
		media:  media,
		outDir: outDir,
		rec: &stubRecognizer{result: &transcribe.Result{
			Text: "Hello world",
			Segments: []subtitle.Segment{
				{StartTime: 0, EndTime: 1200 * time.Millisecond, Text: "Hello"},
				{StartTime: 1200 * time.Millisecond, EndTime: 3 * time.Second, Text: " world "},
			},
		}},
	}
}

func (h *harness) factory(ctx context.Context, cfg *config.Config, logger *logging.Logger) (transcribe.Transcriber, error) {
	h.calls++
	if h.facErr != nil {
		return nil, h.facErr
	}
	return h.rec, nil
}

func (h *harness) run(args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(h.factory)
	cmd.SetErr(&stderr)
	err := execute(context.Background(), cmd, args, &stdout)
	return stdout.String(), stderr.String(), err
}

func TestUsage(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no arguments", nil},
		{"one argument", []string{"talk.mp4"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			stdout, _, err := h.run(tt.args...)

			var usageErr *scribe.UsageError
			if !errors.As(err, &usageErr) {
				t.Fatalf("expected *UsageError, got %T: %v", err, err)
			}
			if stdout != usageLine+"\n" {
				t.Errorf("stdout = %q, want usage line", stdout)
			}
			if h.calls != 0 {
				t.Error("recognizer should not be built")
			}
			assertNoSubtitles(t, h.outDir)
		})
	}
}

func TestSuccess(t *testing.T) {
	h := newHarness(t)
	stdout, _, err := h.run(h.media, h.outDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	srtPath := filepath.Join(h.outDir, "talk.srt")
	if want := "Hello world\n" + srtPath + "\n"; stdout != want {
		t.Errorf("stdout = %q, want %q", stdout, want)
	}
	if !h.rec.closed {
		t.Error("recognizer was not closed")
	}

	sub, err := subtitle.OpenSRT(srtPath)
	if err != nil {
		t.Fatalf("open srt: %v", err)
	}
	if len(sub.Entries) != 2 || sub.Entries[1].Text != "world" {
		t.Errorf("unexpected entries: %+v", sub.Entries)
	}
}

func TestExtraArgumentsIgnored(t *testing.T) {
	h := newHarness(t)
	if _, _, err := h.run(h.media, h.outDir, "surplus"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(h.outDir, "talk.srt")); err != nil {
		t.Errorf("subtitle file missing: %v", err)
	}
}

func TestNoSegmentsStillPrintsPath(t *testing.T) {
	h := newHarness(t)
	h.rec.result = &transcribe.Result{Text: "only text"}

	stdout, _, err := h.run(h.media, h.outDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	srtPath := filepath.Join(h.outDir, "talk.srt")
	if want := "only text\n" + srtPath + "\n"; stdout != want {
		t.Errorf("stdout = %q, want %q", stdout, want)
	}
	assertNoSubtitles(t, h.outDir)
}

func TestFailuresPrintError(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(h *harness) []string
		wantCalls int
	}{
		{
			name: "recognizer error",
			setup: func(h *harness) []string {
				h.rec.err = errors.New("model crashed")
				return []string{h.media, h.outDir}
			},
			wantCalls: 1,
		},
		{
			name: "recognizer cannot be built",
			setup: func(h *harness) []string {
				h.facErr = transcribe.ErrBinaryNotFound
				return []string{h.media, h.outDir}
			},
			wantCalls: 1,
		},
		{
			name: "missing media",
			setup: func(h *harness) []string {
				return []string{filepath.Join(h.outDir, "gone.mp4"), h.outDir}
			},
		},
		{
			name: "missing output directory",
			setup: func(h *harness) []string {
				return []string{h.media, filepath.Join(h.outDir, "nope")}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			args := tt.setup(h)

			stdout, _, err := h.run(args...)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.HasPrefix(stdout, "Error: ") {
				t.Errorf("stdout = %q, want Error: prefix", stdout)
			}
			if strings.Count(stdout, "\n") != 1 {
				t.Errorf("expected a single line, got %q", stdout)
			}
			if h.calls != tt.wantCalls {
				t.Errorf("factory calls = %d, want %d", h.calls, tt.wantCalls)
			}
			assertNoSubtitles(t, h.outDir)
		})
	}
}

func TestVerboseLogsToStderr(t *testing.T) {
	h := newHarness(t)

	stdout, stderr, err := h.run("-v", h.media, h.outDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stderr, "Configuration loaded") {
		t.Errorf("expected debug log on stderr, got %q", stderr)
	}
	if strings.Contains(stdout, "INFO") || strings.Contains(stdout, "DEBUG") {
		t.Errorf("logs leaked to stdout: %q", stdout)
	}
}

func TestInvalidConfigFile(t *testing.T) {
	h := newHarness(t)
	cfgPath := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(cfgPath, []byte("engine = \"whisper\"\nbogus = 1\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("VIDSCRIBE_CONFIG", cfgPath)

	stdout, _, err := h.run(h.media, h.outDir)

	var rtErr *scribe.RuntimeError
	if !errors.As(err, &rtErr) || rtErr.Op != "load config" {
		t.Fatalf("expected load config RuntimeError, got %v", err)
	}
	if !strings.HasPrefix(stdout, "Error: load config: ") {
		t.Errorf("stdout = %q", stdout)
	}
}

func assertNoSubtitles(t *testing.T, dir string) {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "*"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("expected no files in %s, found %v", dir, matches)
	}
}
