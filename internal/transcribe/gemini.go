package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/mgpai22/vidscribe/internal/audio"
	"github.com/mgpai22/vidscribe/internal/config"
	"github.com/mgpai22/vidscribe/internal/logging"
	"github.com/mgpai22/vidscribe/internal/subtitle"
)

const (
	// how deep wrapper objects are searched for a segment array
	maxSegmentSearchDepth = 4

	filePollInterval = 2 * time.Second
)

// implements Transcriber interface using Google Gemini
type GeminiTranscriber struct {
	client   *genai.Client
	model    string
	language string
	tools    MediaTools
	logger   *logging.Logger
}

// segment from Gemini's JSON response
type transcriptSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

func NewGeminiTranscriber(
	ctx context.Context,
	cfg config.Gemini,
	language string,
	tools MediaTools,
	logger *logging.Logger,
) (*GeminiTranscriber, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: %w (set GEMINI_API_KEY)", ErrMissingAPIKey)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}

	return &GeminiTranscriber{
		client:   client,
		model:    model,
		language: language,
		tools:    tools,
		logger:   logger,
	}, nil
}

// Name returns the provider name.
func (t *GeminiTranscriber) Name() string {
	return "gemini"
}

// transcribes a media file by uploading a compressed copy of its audio
func (t *GeminiTranscriber) Transcribe(ctx context.Context, mediaPath string) (*Result, error) {
	tmpDir, err := os.MkdirTemp("", "vidscribe-gemini-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	uploadPath := filepath.Join(tmpDir, "audio.mp3")
	if err := t.tools.Convert(ctx, mediaPath, uploadPath, audio.UploadOptions()); err != nil {
		return nil, fmt.Errorf("failed to prepare audio: %w", err)
	}

	duration, err := t.tools.Duration(ctx, uploadPath)
	if err != nil {
		t.logger.Debugw("Could not probe audio duration", "error", err)
	}

	uploadedFile, err := t.client.Files.UploadFromPath(ctx, uploadPath, &genai.UploadFileConfig{
		MIMEType: "audio/mpeg",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload audio file: %w", err)
	}

	defer func() {
		_, _ = t.client.Files.Delete(context.WithoutCancel(ctx), uploadedFile.Name, nil)
	}()

	uploadedFile, err = t.waitForFile(ctx, uploadedFile)
	if err != nil {
		return nil, err
	}

	parts := []*genai.Part{
		genai.NewPartFromText(t.buildTranscriptionPrompt()),
		genai.NewPartFromURI(uploadedFile.URI, uploadedFile.MIMEType),
	}
	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}

	t.logger.Debugw("Requesting transcript", "model", t.model, "file", uploadedFile.Name)

	resp, err := t.client.Models.GenerateContent(ctx, t.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0),
	})
	if err != nil {
		return nil, fmt.Errorf("transcription failed: %w", err)
	}

	result, err := parseTranscriptionResponse(resp)
	if err != nil {
		return nil, err
	}
	result.Language = t.language
	result.Duration = duration

	return result, nil
}

// blocks until the uploaded file leaves the processing state
func (t *GeminiTranscriber) waitForFile(ctx context.Context, file *genai.File) (*genai.File, error) {
	for file.State == genai.FileStateProcessing {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(filePollInterval):
		}

		var err error
		file, err = t.client.Files.Get(ctx, file.Name, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to check uploaded file: %w", err)
		}
	}

	if file.State == genai.FileStateFailed {
		return nil, fmt.Errorf("gemini could not process uploaded file %s", file.Name)
	}
	return file, nil
}

// creates the prompt for transcription
func (t *GeminiTranscriber) buildTranscriptionPrompt() string {
	var sb strings.Builder

	sb.WriteString("Generate a detailed transcript of this audio. ")
	sb.WriteString("For each sentence or phrase, provide the start timestamp, end timestamp, and the exact text spoken. ")
	sb.WriteString("Format your response as a JSON array with objects containing 'start', 'end', and 'text' fields, ")
	sb.WriteString("where 'start' and 'end' are timestamps in seconds (as numbers). ")

	if t.language != "" {
		sb.WriteString(fmt.Sprintf("The audio is in %s. ", t.language))
	}

	sb.WriteString("Return ONLY the JSON array, no other text or markdown formatting.")

	return sb.String()
}

// parses Gemini's response into a Result
func parseTranscriptionResponse(resp *genai.GenerateContentResponse) (*Result, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("%w: empty response from Gemini", ErrMalformedResult)
	}

	var responseText strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			responseText.WriteString(part.Text)
		}
	}

	return parseTranscriptText(responseText.String())
}

func parseTranscriptText(text string) (*Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: no text in Gemini response", ErrMalformedResult)
	}

	raw, err := extractTranscriptSegments(cleanJSONResponse(text))
	if err != nil {
		return nil, err
	}

	segments := make([]subtitle.Segment, 0, len(raw))
	words := make([]string, 0, len(raw))
	for i, ts := range raw {
		seg, err := SegmentFromSeconds(ts.Start, ts.End, ts.Text)
		if err != nil {
			return nil, fmt.Errorf("segment %d: %w", i, err)
		}
		segments = append(segments, seg)
		if s := strings.TrimSpace(ts.Text); s != "" {
			words = append(words, s)
		}
	}

	return &Result{
		Text:     strings.Join(words, " "),
		Segments: segments,
	}, nil
}

// extractTranscriptSegments finds the first JSON value in s that holds a
// usable segment array. Prose around the JSON and wrapper objects are
// tolerated.
func extractTranscriptSegments(s string) ([]transcriptSegment, error) {
	for i := 0; i < len(s); i++ {
		if s[i] != '[' && s[i] != '{' {
			continue
		}

		dec := json.NewDecoder(strings.NewReader(s[i:]))
		var v any
		if err := dec.Decode(&v); err != nil {
			continue
		}

		if segments, ok := findSegments(v, 0); ok {
			return segments, nil
		}
		// skip the value just decoded
		i += int(dec.InputOffset()) - 1
	}

	return nil, fmt.Errorf(
		"%w: no transcript segments found in response: %s",
		ErrMalformedResult,
		truncateString(s, 200),
	)
}

func findSegments(v any, depth int) ([]transcriptSegment, bool) {
	if depth > maxSegmentSearchDepth {
		return nil, false
	}

	switch val := v.(type) {
	case []any:
		segments := make([]transcriptSegment, 0, len(val))
		for _, item := range val {
			obj, ok := item.(map[string]any)
			if !ok {
				return nil, false
			}
			segments = append(segments, segmentFromObject(obj))
		}
		if !validateSegments(segments) {
			return nil, false
		}
		return segments, true

	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		preferred := []string{"segments", "transcript", "data"}
		for _, k := range keys {
			if !slices.Contains(preferred, k) {
				preferred = append(preferred, k)
			}
		}

		for _, k := range preferred {
			child, ok := val[k]
			if !ok {
				continue
			}
			if segments, ok := findSegments(child, depth+1); ok {
				return segments, true
			}
		}
	}

	return nil, false
}

func segmentFromObject(obj map[string]any) transcriptSegment {
	seg := transcriptSegment{
		Start: toSeconds(obj["start"]),
		End:   toSeconds(obj["end"]),
	}
	if text, ok := obj["text"].(string); ok {
		seg.Text = text
	}
	return seg
}

// numbers and numeric strings are accepted
func toSeconds(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return f
		}
	}
	return 0
}

// reports whether segments carry any content at all
func validateSegments(segments []transcriptSegment) bool {
	for _, seg := range segments {
		if strings.TrimSpace(seg.Text) != "" || seg.Start != 0 || seg.End != 0 {
			return true
		}
	}
	return false
}

var jsonBlockRegex = regexp.MustCompile("```(?:json)?\\s*")

// removes markdown formatting from the response
func cleanJSONResponse(s string) string {
	s = strings.TrimSpace(s)

	// remove ```json and ``` markers
	s = jsonBlockRegex.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "```", "")

	return strings.TrimSpace(s)
}

// truncates a string to maxLen characters
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// Close releases the Gemini client. The SDK holds no resources to free.
func (t *GeminiTranscriber) Close() error {
	return nil
}
