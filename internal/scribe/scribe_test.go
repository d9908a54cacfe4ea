package scribe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/mgpai22/vidscribe/internal/logging"
	"github.com/mgpai22/vidscribe/internal/subtitle"
	"github.com/mgpai22/vidscribe/internal/transcribe"
)

type fakeRecognizer struct {
	result *transcribe.Result
	err    error
	calls  int
}

func (f *fakeRecognizer) Transcribe(ctx context.Context, mediaPath string) (*transcribe.Result, error) {
	f.calls++
	return f.result, f.err
}

func (f *fakeRecognizer) Name() string { return "fake" }

func (f *fakeRecognizer) Close() error { return nil }

func seconds(s float64) time.Duration {
	return subtitle.FromSeconds(s)
}

// creates an empty media file and an output directory
func setup(t *testing.T, mediaName string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	media := filepath.Join(dir, mediaName)
	if err := os.WriteFile(media, []byte("not really media"), 0644); err != nil {
		t.Fatalf("write media: %v", err)
	}
	out := filepath.Join(dir, "out")
	if err := os.Mkdir(out, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	return media, out
}

func TestSubtitlePath(t *testing.T) {
	tests := []struct {
		media string
		want  string
	}{
		{"/videos/talk.mp4", "/out/talk.srt"},
		{"talk.MP3", "/out/talk.srt"},
		{"/videos/archive.tar.gz", "/out/archive.tar.srt"},
		{"/videos/noext", "/out/noext.srt"},
		{"/videos/.hidden", "/out/.hidden.srt"},
		{"/videos/.hidden.wav", "/out/.hidden.srt"},
		{"/videos/my clip (1).mkv", "/out/my clip (1).srt"},
	}

	for _, tt := range tests {
		t.Run(tt.media, func(t *testing.T) {
			if got := SubtitlePath(tt.media, "/out"); got != tt.want {
				t.Errorf("SubtitlePath(%q) = %q, want %q", tt.media, got, tt.want)
			}
		})
	}
}

func TestTranscribeWritesSRT(t *testing.T) {
	media, out := setup(t, "talk.mp4")
	rec := &fakeRecognizer{result: &transcribe.Result{
		Text: "Hello world",
		Segments: []subtitle.Segment{
			{StartTime: seconds(0.0), EndTime: seconds(1.2), Text: "Hello"},
			{StartTime: seconds(1.2), EndTime: seconds(3.0), Text: " world "},
		},
	}}

	got, err := New(rec, logging.Nop()).Transcribe(context.Background(), media, out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := &Output{
		Transcript:   "Hello world",
		SubtitlePath: filepath.Join(out, "talk.srt"),
		Written:      true,
		Entries:      2,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}

	data, err := os.ReadFile(got.SubtitlePath)
	if err != nil {
		t.Fatalf("read srt: %v", err)
	}
	const wantSRT = "1\n00:00:00,000 --> 00:00:01,200\nHello\n\n" +
		"2\n00:00:01,200 --> 00:00:03,000\nworld\n\n"
	if string(data) != wantSRT {
		t.Errorf("srt content:\n%q\nwant:\n%q", data, wantSRT)
	}
}

func TestTranscribeWithoutSegments(t *testing.T) {
	tests := []struct {
		name     string
		segments []subtitle.Segment
	}{
		{"nil segments", nil},
		{"empty segments", []subtitle.Segment{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			media, out := setup(t, "silence.wav")
			rec := &fakeRecognizer{result: &transcribe.Result{Text: "just text", Segments: tt.segments}}

			got, err := New(rec, logging.Nop()).Transcribe(context.Background(), media, out)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Transcript != "just text" {
				t.Errorf("transcript = %q", got.Transcript)
			}
			if got.SubtitlePath != filepath.Join(out, "silence.srt") {
				t.Errorf("subtitle path = %q", got.SubtitlePath)
			}
			if got.Written {
				t.Error("Written should be false")
			}
			if _, err := os.Stat(got.SubtitlePath); !errors.Is(err, os.ErrNotExist) {
				t.Errorf("subtitle file should not exist, stat err = %v", err)
			}
		})
	}
}

func TestTranscribeModelFailure(t *testing.T) {
	media, out := setup(t, "talk.mp4")
	engineErr := errors.New("model exploded")
	rec := &fakeRecognizer{err: engineErr}

	_, err := New(rec, logging.Nop()).Transcribe(context.Background(), media, out)

	var modelErr *ModelError
	if !errors.As(err, &modelErr) {
		t.Fatalf("expected *ModelError, got %T: %v", err, err)
	}
	if modelErr.Engine != "fake" {
		t.Errorf("engine = %q, want fake", modelErr.Engine)
	}
	if !errors.Is(err, engineErr) {
		t.Error("ModelError should unwrap to the engine error")
	}
	assertEmptyDir(t, out)
}

func TestTranscribeMalformedResult(t *testing.T) {
	tests := []struct {
		name   string
		result *transcribe.Result
	}{
		{"nil result", nil},
		{
			"negative timestamp",
			&transcribe.Result{Segments: []subtitle.Segment{{StartTime: -time.Second, EndTime: time.Second, Text: "x"}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			media, out := setup(t, "talk.mp4")
			_, err := New(&fakeRecognizer{result: tt.result}, logging.Nop()).Transcribe(context.Background(), media, out)

			var modelErr *ModelError
			if !errors.As(err, &modelErr) {
				t.Fatalf("expected *ModelError, got %T: %v", err, err)
			}
			if !errors.Is(err, transcribe.ErrMalformedResult) {
				t.Errorf("expected ErrMalformedResult in chain, got %v", err)
			}
			assertEmptyDir(t, out)
		})
	}
}

func TestTranscribeInputErrors(t *testing.T) {
	media, out := setup(t, "talk.mp4")

	tests := []struct {
		name   string
		media  string
		outDir string
		wantOp string
	}{
		{"missing media", filepath.Join(out, "nope.mp4"), out, "open media"},
		{"media is directory", out, out, "open media"},
		{"missing output dir", media, filepath.Join(out, "missing"), "open output directory"},
		{"output dir is file", media, media, "open output directory"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &fakeRecognizer{result: &transcribe.Result{}}
			_, err := New(rec, logging.Nop()).Transcribe(context.Background(), tt.media, tt.outDir)

			var rtErr *RuntimeError
			if !errors.As(err, &rtErr) {
				t.Fatalf("expected *RuntimeError, got %T: %v", err, err)
			}
			if rtErr.Op != tt.wantOp {
				t.Errorf("op = %q, want %q", rtErr.Op, tt.wantOp)
			}
			if rec.calls != 0 {
				t.Error("recognizer should not run on bad input")
			}
		})
	}
}

type failingWriter struct{}

func (failingWriter) Write(*subtitle.Subtitle, string) error {
	return errors.New("disk full")
}

func TestTranscribeWriteFailure(t *testing.T) {
	media, out := setup(t, "talk.mp4")
	rec := &fakeRecognizer{result: &transcribe.Result{
		Segments: []subtitle.Segment{{EndTime: time.Second, Text: "hi"}},
	}}

	tr := New(rec, logging.Nop())
	tr.writer = failingWriter{}

	_, err := tr.Transcribe(context.Background(), media, out)
	var rtErr *RuntimeError
	if !errors.As(err, &rtErr) {
		t.Fatalf("expected *RuntimeError, got %T: %v", err, err)
	}
	if rtErr.Path != filepath.Join(out, "talk.srt") {
		t.Errorf("path = %q", rtErr.Path)
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&UsageError{Usage: "Usage: x <a> <b>"}, "Usage: x <a> <b>"},
		{&ModelError{Engine: "openai", Err: errors.New("timeout")}, "openai transcription failed: timeout"},
		{&RuntimeError{Op: "write subtitles", Path: "/o/a.srt", Err: errors.New("denied")}, "write subtitles /o/a.srt: denied"},
		{&RuntimeError{Op: "load config", Err: errors.New("bad")}, "load config: bad"},
	}

	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected %s to be empty, found %d entries", dir, len(entries))
	}
}
