// Package subtitle models timed subtitle entries and reads and writes them
// in the SubRip (SRT) format.
package subtitle

import (
	"strings"
	"time"
)

// represents transcribed audio segment
type Segment struct {
	StartTime time.Duration
	EndTime   time.Duration
	Text      string
}

// represents single subtitle entry
type Entry struct {
	Index     int
	StartTime time.Duration
	EndTime   time.Duration
	Text      string
}

// represents complete subtitle track
type Subtitle struct {
	Entries []Entry
}

// interface for writing subtitles to files
type Writer interface {
	Write(subtitle *Subtitle, path string) error
}

// file extension for SubRip output
const ExtSRT = ".srt"

// EntriesFromSegments maps segments 1:1 onto entries numbered from 1 in
// input order. Text is trimmed; nothing is dropped, split or re-timed.
func EntriesFromSegments(segments []Segment) []Entry {
	entries := make([]Entry, len(segments))
	for i, seg := range segments {
		entries[i] = Entry{
			Index:     i + 1,
			StartTime: seg.StartTime,
			EndTime:   seg.EndTime,
			Text:      strings.TrimSpace(seg.Text),
		}
	}
	return entries
}

// builds a subtitle track from segments
func New(segments []Segment) *Subtitle {
	return &Subtitle{Entries: EntriesFromSegments(segments)}
}
