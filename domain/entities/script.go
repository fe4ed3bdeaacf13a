package entities

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyScript = errors.New("script has no lines")
	ErrEmptyLine   = errors.New("line text is required")
)

// Line is one spoken line of a dialogue script
type Line struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// Script is an ordered dialogue to be narrated line by line
type Script struct {
	Title string `json:"title"`
	Lines []Line `json:"lines"`
}

// Validate rejects an empty script and any line without text. Speaker may be empty,
// in which case the synthesizer's default voice is used.
func (s *Script) Validate() error {
	if len(s.Lines) == 0 {
		return ErrEmptyScript
	}
	for i, line := range s.Lines {
		if strings.TrimSpace(line.Text) == "" {
			return fmt.Errorf("line %d: %w", i, ErrEmptyLine)
		}
	}
	return nil
}

// Speakers returns the distinct speakers in order of first appearance.
func (s *Script) Speakers() []string {
	seen := make(map[string]bool)
	var speakers []string
	for _, line := range s.Lines {
		if line.Speaker == "" || seen[line.Speaker] {
			continue
		}
		seen[line.Speaker] = true
		speakers = append(speakers, line.Speaker)
	}
	return speakers
}
