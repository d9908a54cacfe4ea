package subtitle

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// SubRip format
type SRTWriter struct{}

func NewSRTWriter() *SRTWriter {
	return &SRTWriter{}
}

// EncodeSRT writes sub to w as SubRip blocks: index, time range, text, blank line.
func EncodeSRT(w io.Writer, sub *Subtitle) error {
	bw := bufio.NewWriter(w)
	for i, entry := range sub.Entries {
		// index (1-based)
		if _, err := fmt.Fprintf(bw, "%d\n", i+1); err != nil {
			return err
		}

		// timestamps: 00:00:00,000 --> 00:00:00,000
		if _, err := fmt.Fprintf(bw, "%s --> %s\n",
			FormatTimestamp(entry.StartTime),
			FormatTimestamp(entry.EndTime)); err != nil {
			return err
		}

		// text
		if _, err := fmt.Fprintf(bw, "%s\n\n", entry.Text); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Write stores the subtitle at path. The content is staged in a temporary
// file next to path and renamed into place, so path is either fully written
// or left untouched. The parent directory must already exist.
func (w *SRTWriter) Write(sub *Subtitle, path string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp subtitle file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if err := EncodeSRT(tmp, sub); err != nil {
		return fmt.Errorf("write subtitles: %w", err)
	}
	if err := tmp.Chmod(0644); err != nil {
		return fmt.Errorf("chmod subtitle file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close subtitle file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename subtitle file: %w", err)
	}

	committed = true
	return nil
}
