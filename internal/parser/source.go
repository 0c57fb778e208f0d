package parser

import (
	"bufio"
	"io"
	"strings"
)

const (
	// escapePrefixWidth is the width of the screen-clear and cursor-home
	// sequence some tools (areca cli64) print in front of a line.
	escapePrefixWidth = 10

	maxLineLength = 1024 * 1024
)

// Source yields the lines of a tool's output one at a time. It allows a
// single line to be pushed back so a table can stop in front of a line
// that belongs to the next table.
type Source struct {
	scanner *bufio.Scanner
	pending []string
	line    int
}

// NewSource creates a Source reading lines from r
func NewSource(r io.Reader) *Source {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineLength)
	return &Source{scanner: scanner}
}

// FromString creates a Source over captured output
func FromString(text string) *Source {
	return NewSource(strings.NewReader(text))
}

// Next returns the next line with escape prefixes stripped and trailing
// whitespace removed. ok is false once the stream is exhausted.
func (s *Source) Next() (string, bool) {
	if n := len(s.pending); n > 0 {
		line := s.pending[n-1]
		s.pending = s.pending[:n-1]
		s.line++
		return line, true
	}
	if !s.scanner.Scan() {
		return "", false
	}
	s.line++
	return StripEscape(strings.TrimRight(s.scanner.Text(), " \t\r\n")), true
}

// Unread pushes a line back so the next call to Next returns it again
func (s *Source) Unread(line string) {
	s.pending = append(s.pending, line)
	s.line--
}

// Pending reports whether a pushed-back line is waiting to be read
func (s *Source) Pending() bool {
	return len(s.pending) > 0
}

// Line returns the number of the last line returned by Next
func (s *Source) Line() int {
	return s.line
}

// Err returns the first read error, if any
func (s *Source) Err() error {
	return s.scanner.Err()
}

// StripEscape removes the fixed-width control prefix from lines that
// contain an escape character.
func StripEscape(line string) string {
	if !strings.ContainsRune(line, '\x1b') {
		return line
	}
	if len(line) <= escapePrefixWidth {
		return ""
	}
	return line[escapePrefixWidth:]
}
