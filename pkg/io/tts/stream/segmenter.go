// Package stream turns streamed generation text into speakable phrases.
package stream

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

type Phrase struct {
	Index   int
	Text    string
	IsFinal bool
}

// Segmenter accumulates text deltas and cuts phrases at sentence ends,
// at clause marks once long enough, or at MaxChars.
//
// The most recent phrase is held back until more non-space text arrives or
// Finish is called, so the last phrase of a reply can carry IsFinal.
type Segmenter struct {
	MaxChars       int    // hard cap (default 240)
	ClauseMinChars int    // clause marks only cut beyond this (default 40)
	FlushPunct     string // sentence terminators (default ".!?")
	ClausePunct    string // clause marks (default ";:,")

	buf  strings.Builder
	held *Phrase
	next int
	emit func(Phrase) error
}

func NewSegmenter(maxChars, clauseMinChars int, emit func(Phrase) error) *Segmenter {
	s := &Segmenter{MaxChars: maxChars, ClauseMinChars: clauseMinChars, emit: emit}
	if s.MaxChars <= 0 {
		s.MaxChars = 240
	}
	if s.ClauseMinChars <= 0 {
		s.ClauseMinChars = 40
	}
	s.FlushPunct = ".!?"
	s.ClausePunct = ";:,"
	return s
}

// Push feeds one delta.
func (s *Segmenter) Push(delta string) error {
	if delta == "" {
		return nil
	}
	s.buf.WriteString(delta)
	for {
		text := s.buf.String()
		cut := s.cutPoint(text)
		if cut <= 0 {
			break
		}
		s.buf.Reset()
		s.buf.WriteString(text[cut:])
		if err := s.complete(strings.TrimSpace(text[:cut])); err != nil {
			return err
		}
	}
	if s.held != nil && strings.TrimSpace(s.buf.String()) != "" {
		return s.release()
	}
	return nil
}

// Finish flushes the remainder and marks the last phrase final. It returns
// the number of phrases produced.
func (s *Segmenter) Finish() (int, error) {
	rest := strings.TrimSpace(s.buf.String())
	s.buf.Reset()
	if err := s.complete(rest); err != nil {
		return s.next, err
	}
	if s.held != nil {
		s.held.IsFinal = true
		if err := s.release(); err != nil {
			return s.next, err
		}
	}
	return s.next, nil
}

func (s *Segmenter) Count() int { return s.next }

func (s *Segmenter) complete(text string) error {
	if text == "" {
		return nil
	}
	if s.held != nil {
		if err := s.release(); err != nil {
			return err
		}
	}
	s.held = &Phrase{Index: s.next, Text: text}
	s.next++
	return nil
}

func (s *Segmenter) release() error {
	p := *s.held
	s.held = nil
	return s.emit(p)
}

// cutPoint returns the byte offset ending the next phrase, or 0.
func (s *Segmenter) cutPoint(text string) int {
	chars := 0
	for i, r := range text {
		chars++
		if r == '\n' {
			return i + 1
		}
		nextSpace := false
		if j := i + utf8.RuneLen(r); j < len(text) {
			nr, _ := utf8.DecodeRuneInString(text[j:])
			nextSpace = unicode.IsSpace(nr)
		}
		if !nextSpace {
			continue
		}
		if strings.ContainsRune(s.FlushPunct, r) {
			return i + 1
		}
		if strings.ContainsRune(s.ClausePunct, r) && chars >= s.ClauseMinChars {
			return i + 1
		}
	}
	if chars < s.MaxChars {
		return 0
	}
	return s.maxCut(text)
}

// maxCut splits at the last whitespace within MaxChars, or hard at MaxChars.
func (s *Segmenter) maxCut(text string) int {
	limit := len(text)
	n := 0
	for i := range text {
		if n == s.MaxChars {
			limit = i
			break
		}
		n++
	}
	if ws := strings.LastIndexFunc(text[:limit], unicode.IsSpace); ws > 0 {
		return ws + 1
	}
	return limit
}
