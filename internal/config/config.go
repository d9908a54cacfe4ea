// Package config loads vidscribe settings.
//
// Settings are resolved in three layers: built-in defaults, an optional TOML
// file, then environment variables. The command line itself only carries the
// media path and the output directory.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// recognition engine identifiers
const (
	EngineWhisper    = "whisper"
	EngineWhisperCgo = "whisper-cgo"
	EngineOpenAI     = "openai"
	EngineGemini     = "gemini"
)

// Whisper configures the local whisper.cpp engines.
type Whisper struct {
	Model      string `toml:"model"`
	BinaryPath string `toml:"binary_path"`
	ModelsDir  string `toml:"models_dir"`
	Threads    int    `toml:"threads"`
}

// OpenAI configures the hosted OpenAI transcription engine.
type OpenAI struct {
	APIKey string `toml:"api_key"`
	Model  string `toml:"model"`
}

// Gemini configures the hosted Google Gemini engine.
type Gemini struct {
	APIKey string `toml:"api_key"`
	Model  string `toml:"model"`
}

// FFmpeg overrides binary discovery for ffmpeg and ffprobe.
type FFmpeg struct {
	FFmpegPath  string `toml:"ffmpeg_path"`
	FFprobePath string `toml:"ffprobe_path"`
}

// Config holds every setting vidscribe reads.
type Config struct {
	Engine   string  `toml:"engine"`
	Language string  `toml:"language"`
	Whisper  Whisper `toml:"whisper"`
	OpenAI   OpenAI  `toml:"openai"`
	Gemini   Gemini  `toml:"gemini"`
	FFmpeg   FFmpeg  `toml:"ffmpeg"`
}

// Default returns the built-in configuration: local whisper.cpp with the base model.
func Default() Config {
	return Config{
		Engine: EngineWhisper,
		Whisper: Whisper{
			Model: "base",
		},
		OpenAI: OpenAI{
			Model: "whisper-1",
		},
		Gemini: Gemini{
			Model: "gemini-2.5-flash",
		},
	}
}

// DefaultConfigPath returns the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/vidscribe/config.toml")
}

// Load reads the configuration file at path (or the default location when
// path is empty), applies environment overrides, then normalizes and
// validates the result. A missing file is not an error.
func Load(path string) (*Config, error) {
	return load(path, os.Getenv)
}

func load(path string, getenv func(string) string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = getenv("VIDSCRIBE_CONFIG")
	}

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", resolvedPath, err)
		}
	}

	cfg.applyEnv(getenv)

	if err := cfg.normalize(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", false, err
		}
		path = defaultPath
	}

	expanded, err := expandPath(path)
	if err != nil {
		return "", false, err
	}

	info, err := os.Stat(expanded)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return expanded, false, nil
		}
		return "", false, fmt.Errorf("stat config: %w", err)
	}
	if info.IsDir() {
		return "", false, fmt.Errorf("config path %s is a directory", expanded)
	}

	return expanded, true, nil
}

// environment variables take precedence over the file
func (c *Config) applyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}

	set(&c.Engine, "VIDSCRIBE_ENGINE")
	set(&c.Language, "VIDSCRIBE_LANGUAGE")
	set(&c.Whisper.BinaryPath, "VIDSCRIBE_WHISPER_PATH")
	set(&c.Whisper.ModelsDir, "VIDSCRIBE_MODELS_DIR")
	set(&c.FFmpeg.FFmpegPath, "VIDSCRIBE_FFMPEG_PATH")
	set(&c.FFmpeg.FFprobePath, "VIDSCRIBE_FFPROBE_PATH")
	set(&c.OpenAI.APIKey, "OPENAI_API_KEY")
	set(&c.Gemini.APIKey, "GEMINI_API_KEY")

	// VIDSCRIBE_MODEL targets whichever engine is selected
	if model := strings.TrimSpace(getenv("VIDSCRIBE_MODEL")); model != "" {
		switch strings.ToLower(strings.TrimSpace(c.Engine)) {
		case EngineOpenAI:
			c.OpenAI.Model = model
		case EngineGemini:
			c.Gemini.Model = model
		default:
			c.Whisper.Model = model
		}
	}
}

func (c *Config) normalize() error {
	c.Engine = strings.ToLower(strings.TrimSpace(c.Engine))
	if c.Engine == "" {
		c.Engine = EngineWhisper
	}
	c.Language = strings.TrimSpace(c.Language)

	defaults := Default()
	if strings.TrimSpace(c.Whisper.Model) == "" {
		c.Whisper.Model = defaults.Whisper.Model
	}
	if strings.TrimSpace(c.OpenAI.Model) == "" {
		c.OpenAI.Model = defaults.OpenAI.Model
	}
	if strings.TrimSpace(c.Gemini.Model) == "" {
		c.Gemini.Model = defaults.Gemini.Model
	}

	if c.Whisper.ModelsDir == "" {
		cacheDir, err := os.UserCacheDir()
		if err != nil || cacheDir == "" {
			cacheDir = os.TempDir()
		}
		c.Whisper.ModelsDir = filepath.Join(cacheDir, "vidscribe", "models")
	}

	var err error
	for _, p := range []*string{
		&c.Whisper.ModelsDir,
		&c.Whisper.BinaryPath,
		&c.FFmpeg.FFmpegPath,
		&c.FFmpeg.FFprobePath,
	} {
		if *p == "" {
			continue
		}
		if *p, err = expandPath(*p); err != nil {
			return err
		}
	}

	return nil
}

// Validate reports configuration values vidscribe cannot run with.
func (c *Config) Validate() error {
	switch c.Engine {
	case EngineWhisper, EngineWhisperCgo, EngineOpenAI, EngineGemini:
	default:
		return fmt.Errorf(
			"unsupported engine %q: use %s, %s, %s or %s",
			c.Engine,
			EngineWhisper,
			EngineWhisperCgo,
			EngineOpenAI,
			EngineGemini,
		)
	}

	if c.Whisper.Threads < 0 {
		return fmt.Errorf("whisper.threads must be >= 0, got %d", c.Whisper.Threads)
	}

	return nil
}

func expandPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expand %s: %w", path, err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return filepath.Clean(path), nil
}
