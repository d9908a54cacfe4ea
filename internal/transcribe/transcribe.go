// Package transcribe turns media files into recognized text and timed
// segments using a pluggable speech-recognition engine.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/mgpai22/vidscribe/internal/audio"
	"github.com/mgpai22/vidscribe/internal/config"
	"github.com/mgpai22/vidscribe/internal/logging"
	"github.com/mgpai22/vidscribe/internal/subtitle"
)

var (
	// ErrMalformedResult marks engine output that cannot be turned into segments.
	ErrMalformedResult = errors.New("malformed recognition result")
	// ErrMissingAPIKey is returned when a hosted engine has no credentials.
	ErrMissingAPIKey = errors.New("API key is required")
	// ErrBinaryNotFound is returned when the whisper.cpp CLI cannot be located.
	ErrBinaryNotFound = errors.New("whisper.cpp binary not found")
	// ErrUnsupportedEngine is returned by New for unknown engine names.
	ErrUnsupportedEngine = errors.New("unsupported engine")
)

// transcription result
type Result struct {
	Text     string             // Full transcript
	Segments []subtitle.Segment // Timed segments in order; may be empty
	Language string
	Duration time.Duration
}

// reports whether any timed segment is present
func (r *Result) HasSegments() bool {
	return r != nil && len(r.Segments) > 0
}

// Validate checks the invariants every engine must uphold before the result
// leaves this package. End before start is tolerated.
func (r *Result) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: no result", ErrMalformedResult)
	}
	for i, seg := range r.Segments {
		if seg.StartTime < 0 || seg.EndTime < 0 {
			return fmt.Errorf(
				"%w: segment %d has negative timestamp (%v, %v)",
				ErrMalformedResult,
				i,
				seg.StartTime,
				seg.EndTime,
			)
		}
	}
	return nil
}

// interface for media transcription
type Transcriber interface {
	Transcribe(ctx context.Context, mediaPath string) (*Result, error)
	Name() string
	Close() error
}

// MediaTools is the subset of audio.Toolkit the engines rely on.
type MediaTools interface {
	Convert(ctx context.Context, inputPath, outputPath string, opts audio.ConvertOptions) error
	Duration(ctx context.Context, path string) (time.Duration, error)
}

// largest number of seconds representable as a time.Duration
const maxSeconds = float64(math.MaxInt64) / float64(time.Second)

// SegmentFromSeconds builds a segment from engine float seconds, rejecting
// values that are NaN, infinite, negative or out of range.
func SegmentFromSeconds(start, end float64, text string) (subtitle.Segment, error) {
	for _, v := range []float64{start, end} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v >= maxSeconds {
			return subtitle.Segment{}, fmt.Errorf(
				"%w: invalid timestamp %v",
				ErrMalformedResult,
				v,
			)
		}
	}
	return subtitle.Segment{
		StartTime: subtitle.FromSeconds(start),
		EndTime:   subtitle.FromSeconds(end),
		Text:      text,
	}, nil
}

// registered by whisper_cgo.go when built with the whispercpp tag
var newCgoTranscriber func(cfg *config.Config, tools MediaTools, logger *logging.Logger) (Transcriber, error)

// creates transcriber for the configured engine
func New(
	ctx context.Context,
	cfg *config.Config,
	tools MediaTools,
	logger *logging.Logger,
) (Transcriber, error) {
	switch cfg.Engine {
	case config.EngineWhisper:
		return NewWhisperTranscriber(ctx, cfg, tools, logger)
	case config.EngineWhisperCgo:
		if newCgoTranscriber == nil {
			return nil, fmt.Errorf(
				"%w: %s requires a build with -tags whispercpp",
				ErrUnsupportedEngine,
				cfg.Engine,
			)
		}
		return newCgoTranscriber(cfg, tools, logger)
	case config.EngineOpenAI:
		return NewOpenAITranscriber(cfg.OpenAI, cfg.Language, tools, logger)
	case config.EngineGemini:
		return NewGeminiTranscriber(ctx, cfg.Gemini, cfg.Language, tools, logger)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEngine, cfg.Engine)
	}
}
