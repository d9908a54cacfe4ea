package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mgpai22/vidscribe/internal/audio"
	"github.com/mgpai22/vidscribe/internal/config"
	"github.com/mgpai22/vidscribe/internal/ffmpeg"
	"github.com/mgpai22/vidscribe/internal/logging"
	"github.com/mgpai22/vidscribe/internal/scribe"
	"github.com/mgpai22/vidscribe/internal/transcribe"
)

const usageLine = "Usage: vidscribe <media_path> <output_dir>"

// builds the recognizer selected by the configuration
type recognizerFactory func(
	ctx context.Context,
	cfg *config.Config,
	logger *logging.Logger,
) (transcribe.Transcriber, error)

func newRootCmd(newRecognizer recognizerFactory) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "vidscribe <media_path> <output_dir>",
		Short: "Transcribe a video or audio file into text and SRT subtitles",
		Long: `vidscribe runs speech recognition on a video or audio file, prints the
transcript and writes <output_dir>/<name>.srt.

The engine defaults to a local whisper.cpp with the "base" model. Other
engines (whisper-cgo, openai, gemini) are selected in
~/.config/vidscribe/config.toml or with VIDSCRIBE_ENGINE.

Examples:
  vidscribe talk.mp4 ./subs
  VIDSCRIBE_ENGINE=openai vidscribe podcast.mp3 .`,
		Args:          requireMediaAndOutput,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.New(cmd.ErrOrStderr(), verbose)
			defer func() { _ = logger.Sync() }()

			return run(cmd.Context(), cmd.OutOrStdout(), logger, newRecognizer, args[0], args[1])
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	return cmd
}

// extra positional arguments are ignored
func requireMediaAndOutput(cmd *cobra.Command, args []string) error {
	if len(args) < 2 {
		return &scribe.UsageError{
			Usage: usageLine,
			Err:   fmt.Errorf("requires 2 arguments, received %d", len(args)),
		}
	}
	return nil
}

func run(
	ctx context.Context,
	stdout io.Writer,
	logger *logging.Logger,
	newRecognizer recognizerFactory,
	mediaPath, outputDir string,
) error {
	if err := scribe.CheckInputs(mediaPath, outputDir); err != nil {
		return err
	}

	cfg, err := config.Load("")
	if err != nil {
		return &scribe.RuntimeError{Op: "load config", Err: err}
	}

	logger.Debugw("Configuration loaded", "engine", cfg.Engine, "language", cfg.Language)

	recognizer, err := newRecognizer(ctx, cfg, logger)
	if err != nil {
		return &scribe.ModelError{Engine: cfg.Engine, Err: err}
	}
	defer recognizer.Close()

	out, err := scribe.New(recognizer, logger).Transcribe(ctx, mediaPath, outputDir)
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout, out.Transcript)
	fmt.Fprintln(stdout, out.SubtitlePath)
	return nil
}

func defaultRecognizer(
	ctx context.Context,
	cfg *config.Config,
	logger *logging.Logger,
) (transcribe.Transcriber, error) {
	bins := ffmpeg.NewResolver(ffmpeg.BinaryPaths{
		FFmpeg:  cfg.FFmpeg.FFmpegPath,
		FFprobe: cfg.FFmpeg.FFprobePath,
	})
	return transcribe.New(ctx, cfg, audio.NewToolkit(bins), logger)
}

// Execute runs the root command against os.Args. Interrupts cancel the
// running transcription.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return execute(ctx, newRootCmd(defaultRecognizer), os.Args[1:], os.Stdout)
}

func execute(ctx context.Context, cmd *cobra.Command, args []string, stdout io.Writer) error {
	cmd.SetArgs(args)
	cmd.SetOut(stdout)

	err := cmd.ExecuteContext(ctx)
	if err != nil {
		report(stdout, err)
	}
	return err
}

// prints the usage line or a single Error: line
func report(w io.Writer, err error) {
	var usageErr *scribe.UsageError
	if errors.As(err, &usageErr) {
		fmt.Fprintln(w, usageErr.Usage)
		return
	}
	fmt.Fprintf(w, "Error: %v\n", err)
}
