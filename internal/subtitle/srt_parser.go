package subtitle

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
)

var timingLineRegex = regexp.MustCompile(
	`^(\d{2,}):(\d{2}):(\d{2}),(\d{3})\s*-->\s*(\d{2,}):(\d{2}):(\d{2}),(\d{3})`,
)

// OpenSRT parses the SubRip file at path.
func OpenSRT(path string) (*Subtitle, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SRT file: %w", err)
	}
	defer file.Close()

	return ParseSRT(file)
}

type parseState int

const (
	expectIndex parseState = iota
	expectTiming
	inText
)

// ParseSRT reads SubRip blocks from r. A block whose text line is empty
// yields an entry with empty text.
func ParseSRT(r io.Reader) (*Subtitle, error) {
	var (
		entries   []Entry
		current   Entry
		textLines []string
		state     = expectIndex
		lineNum   = 0
	)

	flush := func() {
		current.Text = strings.Join(textLines, "\n")
		entries = append(entries, current)
		current = Entry{}
		textLines = nil
		state = expectIndex
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		lineNum++

		if lineNum == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
		}

		switch state {
		case expectIndex:
			if strings.TrimSpace(line) == "" {
				continue
			}
			index, err := strconv.Atoi(strings.TrimSpace(line))
			if err != nil {
				return nil, fmt.Errorf("invalid index at line %d: %q", lineNum, line)
			}
			current.Index = index
			state = expectTiming

		case expectTiming:
			matches := timingLineRegex.FindStringSubmatch(line)
			if len(matches) != 9 {
				return nil, fmt.Errorf("invalid timing line at line %d: %q", lineNum, line)
			}
			start, err := parseSRTTimestamp(matches[1], matches[2], matches[3], matches[4])
			if err != nil {
				return nil, fmt.Errorf("invalid start timestamp at line %d: %w", lineNum, err)
			}
			end, err := parseSRTTimestamp(matches[5], matches[6], matches[7], matches[8])
			if err != nil {
				return nil, fmt.Errorf("invalid end timestamp at line %d: %w", lineNum, err)
			}
			current.StartTime = start
			current.EndTime = end
			state = inText

		case inText:
			if strings.TrimSpace(line) == "" {
				flush()
				continue
			}
			textLines = append(textLines, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading SRT file: %w", err)
	}

	switch state {
	case inText:
		flush()
	case expectTiming:
		return nil, fmt.Errorf("truncated SRT block %d", current.Index)
	}

	return &Subtitle{Entries: entries}, nil
}
