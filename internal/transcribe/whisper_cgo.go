//go:build whispercpp && cgo

package transcribe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/go-audio/wav"

	"github.com/mgpai22/vidscribe/internal/audio"
	"github.com/mgpai22/vidscribe/internal/config"
	"github.com/mgpai22/vidscribe/internal/logging"
	"github.com/mgpai22/vidscribe/internal/subtitle"
)

func init() {
	newCgoTranscriber = func(cfg *config.Config, tools MediaTools, logger *logging.Logger) (Transcriber, error) {
		return NewWhisperCgoTranscriber(context.Background(), cfg, tools, logger)
	}
}

// WhisperCgoTranscriber runs whisper.cpp in process through its Go bindings.
type WhisperCgoTranscriber struct {
	model    whisper.Model
	language string
	threads  int
	tools    MediaTools
	logger   *logging.Logger
}

func NewWhisperCgoTranscriber(
	ctx context.Context,
	cfg *config.Config,
	tools MediaTools,
	logger *logging.Logger,
) (*WhisperCgoTranscriber, error) {
	name := cfg.Whisper.Model
	if name == "" {
		name = DefaultWhisperModel
	}

	modelPath, err := NewModelStore(cfg.Whisper.ModelsDir, logger).Ensure(ctx, name)
	if err != nil {
		return nil, err
	}

	model, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load whisper model %s: %w", modelPath, err)
	}

	threads := cfg.Whisper.Threads
	if threads <= 0 {
		threads = min(runtime.NumCPU(), 8)
	}

	return &WhisperCgoTranscriber{
		model:    model,
		language: cfg.Language,
		threads:  threads,
		tools:    tools,
		logger:   logger,
	}, nil
}

// Name returns the provider name.
func (w *WhisperCgoTranscriber) Name() string {
	return "whisper.cpp (cgo)"
}

func (w *WhisperCgoTranscriber) Transcribe(ctx context.Context, mediaPath string) (*Result, error) {
	tmpDir, err := os.MkdirTemp("", "vidscribe-whisper-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	wavPath := filepath.Join(tmpDir, "audio.wav")
	if err := w.tools.Convert(ctx, mediaPath, wavPath, audio.WhisperOptions()); err != nil {
		return nil, fmt.Errorf("failed to prepare audio: %w", err)
	}

	samples, sampleRate, err := readSamples(wavPath)
	if err != nil {
		return nil, err
	}

	wctx, err := w.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("failed to create whisper context: %w", err)
	}

	language := w.language
	if language == "" {
		language = "auto"
	}
	if err := wctx.SetLanguage(language); err != nil {
		return nil, fmt.Errorf("failed to set language %q: %w", language, err)
	}
	wctx.SetThreads(uint(w.threads))

	w.logger.Debugw("Running whisper.cpp in process",
		"samples", len(samples),
		"threads", w.threads,
	)

	// returning false from the encoder callback aborts the run
	proceed := func() bool { return ctx.Err() == nil }
	if err := wctx.Process(samples, proceed, nil, nil); err != nil {
		return nil, fmt.Errorf("failed to process audio: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		segments []subtitle.Segment
		text     strings.Builder
	)
	for {
		seg, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read segment: %w", err)
		}
		segments = append(segments, subtitle.Segment{
			StartTime: seg.Start,
			EndTime:   seg.End,
			Text:      seg.Text,
		})
		text.WriteString(seg.Text)
	}

	detected := wctx.DetectedLanguage()
	if detected == "" {
		detected = w.language
	}

	return &Result{
		Text:     strings.TrimSpace(text.String()),
		Segments: segments,
		Language: detected,
		Duration: time.Duration(float64(len(samples)) / float64(sampleRate) * float64(time.Second)),
	}, nil
}

// readSamples decodes 16-bit PCM WAV into normalized float32 samples.
func readSamples(wavPath string) ([]float32, int, error) {
	file, err := os.Open(wavPath)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open WAV file: %w", err)
	}
	defer file.Close()

	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		return nil, 0, fmt.Errorf("invalid WAV file: %s", wavPath)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to decode WAV: %w", err)
	}

	const maxInt16 = 32768.0
	samples := make([]float32, len(buf.Data))
	for i, sample := range buf.Data {
		samples[i] = float32(sample) / maxInt16
	}

	sampleRate := int(decoder.SampleRate)
	if sampleRate == 0 {
		return nil, 0, fmt.Errorf("invalid WAV sample rate: %s", wavPath)
	}
	return samples, sampleRate, nil
}

// Close releases the model.
func (w *WhisperCgoTranscriber) Close() error {
	if w.model != nil {
		return w.model.Close()
	}
	return nil
}
