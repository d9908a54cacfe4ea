// Package audio prepares media files for recognition engines.
package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// BinaryLocator resolves the ffmpeg toolchain.
type BinaryLocator interface {
	FFmpegPath() (string, error)
	FFprobePath() (string, error)
}

// settings for audio conversion
type ConvertOptions struct {
	Format     string // Output format (wav, mp3, aac, flac)
	SampleRate int    // Sample rate in Hz
	Channels   int    // Number of channels (1=mono, 2=stereo)
	Bitrate    string // Bitrate for lossy formats (e.g., "64k")
}

// 16 kHz mono PCM, the input whisper.cpp expects
func WhisperOptions() ConvertOptions {
	return ConvertOptions{
		Format:     "wav",
		SampleRate: 16000,
		Channels:   1,
	}
}

// small mono mp3 for hosted APIs with upload limits
func UploadOptions() ConvertOptions {
	return ConvertOptions{
		Format:     "mp3",
		SampleRate: 16000,
		Channels:   1,
		Bitrate:    "64k",
	}
}

// Toolkit runs ffmpeg and ffprobe through a BinaryLocator.
type Toolkit struct {
	bins BinaryLocator
}

func NewToolkit(bins BinaryLocator) *Toolkit {
	return &Toolkit{bins: bins}
}

// JSON output from ffprobe
type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// duration of an audio/video file
func (t *Toolkit) Duration(ctx context.Context, filePath string) (time.Duration, error) {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return 0, fmt.Errorf("file not found: %s", filePath)
	}

	ffprobePath, err := t.bins.FFprobePath()
	if err != nil {
		return 0, err
	}

	cmd := exec.CommandContext(ctx, ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		filePath,
	)

	var out bytes.Buffer
	cmd.Stdout = &out

	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	return parseProbeDuration(out.Bytes())
}

func parseProbeDuration(data []byte) (time.Duration, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal(data, &probe); err != nil {
		return 0, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(probe.Format.Duration), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration: %w", err)
	}
	if seconds < 0 {
		return 0, fmt.Errorf("negative duration %v", seconds)
	}

	return time.Duration(seconds * float64(time.Second)), nil
}

// converts the audio track of inputPath into outputPath; video streams are dropped
func (t *Toolkit) Convert(
	ctx context.Context,
	inputPath, outputPath string,
	opts ConvertOptions,
) error {
	if _, err := os.Stat(inputPath); os.IsNotExist(err) {
		return fmt.Errorf("input file not found: %s", inputPath)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	outputDir := filepath.Dir(outputPath)
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	ffmpegPath, err := t.bins.FFmpegPath()
	if err != nil {
		return err
	}

	var stderr bytes.Buffer
	cmd := ffmpeg.Input(inputPath).
		Output(outputPath, convertArgs(opts)).
		OverWriteOutput().
		SetFfmpegPath(ffmpegPath).
		WithErrorOutput(&stderr).
		Compile()

	if err := runContext(ctx, cmd); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("ffmpeg conversion failed: %w: %s", err, lastLine(stderr.String()))
	}

	return nil
}

// runs cmd and kills it once ctx is done
func runContext(ctx context.Context, cmd *exec.Cmd) error {
	if err := cmd.Start(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-done
		return ctx.Err()
	}
}

func convertArgs(opts ConvertOptions) ffmpeg.KwArgs {
	kwargs := ffmpeg.KwArgs{
		"vn": "", // No video
		"sn": "", // No subtitles
	}
	if opts.SampleRate > 0 {
		kwargs["ar"] = opts.SampleRate
	}
	if opts.Channels > 0 {
		kwargs["ac"] = opts.Channels
	}

	switch opts.Format {
	case "mp3":
		kwargs["acodec"] = "libmp3lame"
		if opts.Bitrate != "" {
			kwargs["b:a"] = opts.Bitrate
		}
	case "aac":
		kwargs["acodec"] = "aac"
		if opts.Bitrate != "" {
			kwargs["b:a"] = opts.Bitrate
		}
	case "flac":
		kwargs["acodec"] = "flac"
	default:
		kwargs["acodec"] = "pcm_s16le"
	}

	return kwargs
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, "\n"); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}

// checks if the file is a video based on extension
func IsVideoFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	videoExts := map[string]bool{
		".mp4":  true,
		".mkv":  true,
		".avi":  true,
		".mov":  true,
		".wmv":  true,
		".flv":  true,
		".webm": true,
		".m4v":  true,
		".mpeg": true,
		".mpg":  true,
		".3gp":  true,
	}
	return videoExts[ext]
}

// checks if the file is an audio file based on extension
func IsAudioFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	audioExts := map[string]bool{
		".mp3":  true,
		".wav":  true,
		".aac":  true,
		".flac": true,
		".ogg":  true,
		".m4a":  true,
		".wma":  true,
		".aiff": true,
	}
	return audioExts[ext]
}

// checks if the file is either audio or video
func IsMediaFile(path string) bool {
	return IsAudioFile(path) || IsVideoFile(path)
}
