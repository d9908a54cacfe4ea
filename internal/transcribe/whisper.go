package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/mgpai22/vidscribe/internal/audio"
	"github.com/mgpai22/vidscribe/internal/config"
	"github.com/mgpai22/vidscribe/internal/logging"
	"github.com/mgpai22/vidscribe/internal/subtitle"
)

// executable names whisper.cpp has shipped its CLI under
var whisperBinaryNames = []string{"whisper-cli", "whisper-cpp", "whisper.cpp"}

type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// WhisperTranscriber runs the whisper.cpp CLI against a local ggml model.
type WhisperTranscriber struct {
	binaryPath string
	modelPath  string
	language   string
	threads    int
	tools      MediaTools
	logger     *logging.Logger
	run        commandRunner
}

// NewWhisperTranscriber locates the whisper.cpp CLI and makes sure the
// configured model is available, downloading it on first use.
func NewWhisperTranscriber(
	ctx context.Context,
	cfg *config.Config,
	tools MediaTools,
	logger *logging.Logger,
) (*WhisperTranscriber, error) {
	binaryPath, err := findWhisperBinary(cfg.Whisper.BinaryPath)
	if err != nil {
		return nil, err
	}

	model := cfg.Whisper.Model
	if model == "" {
		model = DefaultWhisperModel
	}

	modelPath, err := NewModelStore(cfg.Whisper.ModelsDir, logger).Ensure(ctx, model)
	if err != nil {
		return nil, err
	}

	threads := cfg.Whisper.Threads
	if threads <= 0 {
		threads = min(runtime.NumCPU(), 8)
	}

	return &WhisperTranscriber{
		binaryPath: binaryPath,
		modelPath:  modelPath,
		language:   cfg.Language,
		threads:    threads,
		tools:      tools,
		logger:     logger,
		run:        runCommand,
	}, nil
}

func findWhisperBinary(configured string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err != nil {
			return "", fmt.Errorf("%w: %s", ErrBinaryNotFound, configured)
		}
		return configured, nil
	}

	for _, name := range whisperBinaryNames {
		if found, err := exec.LookPath(name); err == nil {
			return found, nil
		}
	}

	return "", fmt.Errorf(
		"%w: install whisper.cpp or set VIDSCRIBE_WHISPER_PATH (looked for %s)",
		ErrBinaryNotFound,
		strings.Join(whisperBinaryNames, ", "),
	)
}

// Name returns the provider name.
func (w *WhisperTranscriber) Name() string {
	return "whisper.cpp"
}

// Transcribe converts the media to 16 kHz mono WAV and runs whisper.cpp on it.
func (w *WhisperTranscriber) Transcribe(ctx context.Context, mediaPath string) (*Result, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	tmpDir, err := os.MkdirTemp("", "vidscribe-whisper-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	wavPath := filepath.Join(tmpDir, "audio.wav")
	if err := w.tools.Convert(ctx, mediaPath, wavPath, audio.WhisperOptions()); err != nil {
		return nil, fmt.Errorf("failed to prepare audio: %w", err)
	}

	duration, err := w.tools.Duration(ctx, wavPath)
	if err != nil {
		w.logger.Debugw("Could not probe audio duration", "error", err)
	}

	outputBase := filepath.Join(tmpDir, "output")
	args := w.buildArgs(wavPath, outputBase)

	w.logger.Debugw("Running whisper.cpp",
		"binary", w.binaryPath,
		"model", filepath.Base(w.modelPath),
		"threads", w.threads,
	)

	if out, err := w.run(ctx, w.binaryPath, args...); err != nil {
		return nil, fmt.Errorf("whisper failed: %w: %s", err, tail(string(out), 3))
	}

	data, err := os.ReadFile(outputBase + ".json")
	if err != nil {
		return nil, fmt.Errorf("failed to read whisper output: %w", err)
	}

	result, err := parseWhisperJSON(data)
	if err != nil {
		return nil, err
	}
	result.Duration = duration

	return result, nil
}

func (w *WhisperTranscriber) buildArgs(wavPath, outputBase string) []string {
	language := w.language
	if language == "" {
		language = "auto"
	}

	return []string{
		"-m", w.modelPath,
		"-f", wavPath,
		"-l", language,
		"-t", strconv.Itoa(w.threads),
		"-oj",
		"-of", outputBase,
		"-np",
	}
}

// Close is a no-op for the CLI runner.
func (w *WhisperTranscriber) Close() error {
	return nil
}

// JSON written by whisper-cli -oj
type whisperCLIOutput struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

// parseWhisperJSON converts whisper-cli JSON output into a Result. Offsets are
// in milliseconds; the transcript is the concatenated segment text.
func parseWhisperJSON(data []byte) (*Result, error) {
	var out whisperCLIOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResult, err)
	}

	var text strings.Builder
	segments := make([]subtitle.Segment, 0, len(out.Transcription))
	for i, seg := range out.Transcription {
		if seg.Offsets.From < 0 || seg.Offsets.To < 0 {
			return nil, fmt.Errorf(
				"%w: segment %d has negative offset",
				ErrMalformedResult,
				i,
			)
		}
		segments = append(segments, subtitle.Segment{
			StartTime: time.Duration(seg.Offsets.From) * time.Millisecond,
			EndTime:   time.Duration(seg.Offsets.To) * time.Millisecond,
			Text:      seg.Text,
		})
		text.WriteString(seg.Text)
	}

	return &Result{
		Text:     strings.TrimSpace(text.String()),
		Segments: segments,
		Language: out.Result.Language,
	}, nil
}

// last n non-empty lines of s
func tail(s string, n int) string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "; ")
}
