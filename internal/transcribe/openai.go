package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/mgpai22/vidscribe/internal/audio"
	"github.com/mgpai22/vidscribe/internal/config"
	"github.com/mgpai22/vidscribe/internal/logging"
	"github.com/mgpai22/vidscribe/internal/subtitle"
)

// upload limit of the audio transcription endpoint
const openAIMaxUploadBytes = 25 * 1000 * 1000

// implements Transcriber interface using OpenAI Audio API
type OpenAITranscriber struct {
	client   openai.Client
	model    string
	language string
	tools    MediaTools
	logger   *logging.Logger
}

// segment from OpenAI Whisper verbose_json response
type whisperSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// verbose_json response structure from Whisper
type whisperVerboseResponse struct {
	Text     string           `json:"text"`
	Segments []whisperSegment `json:"segments"`
	Language string           `json:"language"`
	Duration float64          `json:"duration"`
}

func NewOpenAITranscriber(
	cfg config.OpenAI,
	language string,
	tools MediaTools,
	logger *logging.Logger,
) (*OpenAITranscriber, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: %w (set OPENAI_API_KEY)", ErrMissingAPIKey)
	}

	model := cfg.Model
	if model == "" {
		model = "whisper-1"
	}

	return &OpenAITranscriber{
		client:   openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:    model,
		language: language,
		tools:    tools,
		logger:   logger,
	}, nil
}

// Name returns the provider name.
func (t *OpenAITranscriber) Name() string {
	return "openai"
}

// Transcribe compresses the media to a small mp3 and sends it to the
// transcription endpoint with segment timestamps.
func (t *OpenAITranscriber) Transcribe(
	ctx context.Context,
	mediaPath string,
) (*Result, error) {
	tmpDir, err := os.MkdirTemp("", "vidscribe-openai-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	uploadPath := filepath.Join(tmpDir, "audio.mp3")
	if err := t.tools.Convert(ctx, mediaPath, uploadPath, audio.UploadOptions()); err != nil {
		return nil, fmt.Errorf("failed to prepare audio: %w", err)
	}

	info, err := os.Stat(uploadPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat audio: %w", err)
	}
	if info.Size() > openAIMaxUploadBytes {
		return nil, fmt.Errorf(
			"audio is %s after compression, over the %s upload limit",
			humanize.Bytes(uint64(info.Size())),
			humanize.Bytes(openAIMaxUploadBytes),
		)
	}

	file, err := os.Open(uploadPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer file.Close()

	params := openai.AudioTranscriptionNewParams{
		File:                   file,
		Model:                  openai.AudioModel(t.model),
		ResponseFormat:         openai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []string{"segment"},
	}
	if t.language != "" {
		params.Language = openai.String(t.language)
	}

	t.logger.Debugw("Uploading audio",
		"model", t.model,
		"size", humanize.Bytes(uint64(info.Size())),
	)

	resp, err := t.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("transcription failed: %w", err)
	}

	result, err := parseVerboseJSONResponse(resp.RawJSON())
	if err != nil {
		return nil, err
	}
	if result.Language == "" {
		result.Language = t.language
	}

	return result, nil
}

// parseVerboseJSONResponse maps a verbose_json body onto a Result. Segments
// are kept one to one with the response, including ones with empty text.
func parseVerboseJSONResponse(rawJSON string) (*Result, error) {
	if strings.TrimSpace(rawJSON) == "" {
		return nil, fmt.Errorf("%w: empty response", ErrMalformedResult)
	}

	var verboseResp whisperVerboseResponse
	if err := json.Unmarshal([]byte(rawJSON), &verboseResp); err != nil {
		return nil, fmt.Errorf(
			"%w: failed to parse verbose_json response: %v",
			ErrMalformedResult,
			err,
		)
	}

	segments := make([]subtitle.Segment, 0, len(verboseResp.Segments))
	for i, seg := range verboseResp.Segments {
		s, err := SegmentFromSeconds(seg.Start, seg.End, seg.Text)
		if err != nil {
			return nil, fmt.Errorf("segment %d: %w", i, err)
		}
		segments = append(segments, s)
	}

	var duration time.Duration
	if verboseResp.Duration > 0 && verboseResp.Duration < maxSeconds {
		duration = subtitle.FromSeconds(verboseResp.Duration)
	}

	return &Result{
		Text:     strings.TrimSpace(verboseResp.Text),
		Segments: segments,
		Language: verboseResp.Language,
		Duration: duration,
	}, nil
}

func (t *OpenAITranscriber) Close() error {
	return nil
}
