// Package scribe turns a media file into a transcript and an SRT subtitle
// file next to it in an output directory.
package scribe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/mgpai22/vidscribe/internal/audio"
	"github.com/mgpai22/vidscribe/internal/logging"
	"github.com/mgpai22/vidscribe/internal/subtitle"
	"github.com/mgpai22/vidscribe/internal/transcribe"
)

// Output is what a successful run produces.
type Output struct {
	Transcript   string
	SubtitlePath string
	// Written is false when the recognizer returned no segments. SubtitlePath
	// is still set but nothing exists there.
	Written bool
	Entries int
}

// Transcriber runs a recognizer over a media file and writes its segments
// as SubRip subtitles.
type Transcriber struct {
	recognizer transcribe.Transcriber
	writer     subtitle.Writer
	logger     *logging.Logger
}

func New(recognizer transcribe.Transcriber, logger *logging.Logger) *Transcriber {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Transcriber{
		recognizer: recognizer,
		writer:     subtitle.NewSRTWriter(),
		logger:     logger,
	}
}

// SubtitlePath returns outputDir/<media base name without extension>.srt.
// Leading dots of the base name are not treated as an extension separator.
func SubtitlePath(mediaPath, outputDir string) string {
	base := filepath.Base(mediaPath)
	rest := strings.TrimLeft(base, ".")
	lead := len(base) - len(rest)
	if i := strings.LastIndexByte(rest, '.'); i >= 0 {
		base = base[:lead+i]
	}
	return filepath.Join(outputDir, base+subtitle.ExtSRT)
}

// Transcribe recognizes speech in mediaPath and writes the subtitle file
// into outputDir. Nothing is written when there are no segments.
func (t *Transcriber) Transcribe(ctx context.Context, mediaPath, outputDir string) (*Output, error) {
	if err := CheckInputs(mediaPath, outputDir); err != nil {
		return nil, err
	}

	kind := "unknown"
	switch {
	case audio.IsVideoFile(mediaPath):
		kind = "video"
	case audio.IsAudioFile(mediaPath):
		kind = "audio"
	}
	if !audio.IsMediaFile(mediaPath) {
		t.logger.Warnw("Unrecognized media extension, passing to engine anyway", "file", mediaPath)
	}
	engine := t.recognizer.Name()
	t.logger.Infow("Transcribing", "file", filepath.Base(mediaPath), "kind", kind, "engine", engine)

	result, err := t.recognizer.Transcribe(ctx, mediaPath)
	if err != nil {
		return nil, &ModelError{Engine: engine, Err: err}
	}
	if err := result.Validate(); err != nil {
		return nil, &ModelError{Engine: engine, Err: err}
	}

	t.logger.Debugw("Recognition finished",
		"segments", len(result.Segments),
		"language", result.Language,
		"duration", result.Duration,
	)

	out := &Output{
		Transcript:   result.Text,
		SubtitlePath: SubtitlePath(mediaPath, outputDir),
	}

	if !result.HasSegments() {
		t.logger.Warnw("No segments recognized, subtitle file not written", "path", out.SubtitlePath)
		return out, nil
	}

	sub := subtitle.New(result.Segments)
	if err := t.writer.Write(sub, out.SubtitlePath); err != nil {
		return nil, &RuntimeError{Op: "write subtitles", Path: out.SubtitlePath, Err: err}
	}

	out.Written = true
	out.Entries = len(sub.Entries)
	t.logger.Infow("Subtitles written", "path", out.SubtitlePath, "entries", out.Entries)

	return out, nil
}

// CheckInputs verifies that mediaPath is a file and outputDir a directory.
func CheckInputs(mediaPath, outputDir string) error {
	info, err := os.Stat(mediaPath)
	if err != nil {
		return &RuntimeError{Op: "open media", Path: mediaPath, Err: unwrapPathError(err)}
	}
	if info.IsDir() {
		return &RuntimeError{Op: "open media", Path: mediaPath, Err: errors.New("is a directory")}
	}

	info, err = os.Stat(outputDir)
	if err != nil {
		return &RuntimeError{Op: "open output directory", Path: outputDir, Err: unwrapPathError(err)}
	}
	if !info.IsDir() {
		return &RuntimeError{Op: "open output directory", Path: outputDir, Err: errors.New("not a directory")}
	}
	return nil
}

// drops the *fs.PathError layer so the path is not printed twice
func unwrapPathError(err error) error {
	var pe *os.PathError
	if errors.As(err, &pe) {
		return pe.Err
	}
	return err
}
