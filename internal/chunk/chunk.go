// Package chunk splits long documents into sentence-aligned pieces for
// embedding. Chunks stay within [MinLength, MaxLength] where the input
// allows, and consecutive chunks share an Overlap-sized tail so that facts
// straddling a boundary remain retrievable.
package chunk

import (
	"strings"
	"unicode/utf8"
)

type Config struct {
	MinLength int
	MaxLength int
	Overlap   int
}

type Splitter struct {
	cfg Config
}

func NewSplitter(cfg Config) *Splitter {
	if cfg.MinLength <= 0 {
		cfg.MinLength = 1
	}
	if cfg.MaxLength <= cfg.MinLength {
		cfg.MaxLength = cfg.MinLength * 2
	}
	if cfg.Overlap < 0 {
		cfg.Overlap = 0
	}
	if cfg.Overlap >= cfg.MaxLength {
		cfg.Overlap = cfg.MaxLength / 2
	}
	return &Splitter{cfg: cfg}
}

// Split returns the chunks of text in document order. Whitespace-only input
// yields no chunks. A single sentence longer than MaxLength is hard-split.
func (s *Splitter) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	sentences := splitSentences(text)

	var chunks []string
	var cur strings.Builder
	for _, sent := range sentences {
		for utf8.RuneCountInString(sent) > s.cfg.MaxLength {
			head, rest := cutRunes(sent, s.cfg.MaxLength-utf8.RuneCountInString(cur.String()))
			if head == "" {
				// current chunk is full, flush and retry
				chunks = s.flush(chunks, &cur)
				continue
			}
			cur.WriteString(head)
			chunks = s.flush(chunks, &cur)
			sent = rest
		}
		if utf8.RuneCountInString(cur.String())+utf8.RuneCountInString(sent) > s.cfg.MaxLength {
			chunks = s.flush(chunks, &cur)
		}
		cur.WriteString(sent)
	}
	if strings.TrimSpace(cur.String()) != "" {
		chunks = append(chunks, strings.TrimSpace(cur.String()))
	}
	return chunks
}

// flush appends the current chunk and seeds the next one with the overlap
// tail of the flushed text.
func (s *Splitter) flush(chunks []string, cur *strings.Builder) []string {
	text := strings.TrimSpace(cur.String())
	cur.Reset()
	if text == "" {
		return chunks
	}
	chunks = append(chunks, text)
	if s.cfg.Overlap > 0 {
		cur.WriteString(tailRunes(text, s.cfg.Overlap))
	}
	return chunks
}

// splitSentences cuts text after sentence-ending punctuation or newlines,
// keeping the terminator and trailing space with the sentence.
func splitSentences(text string) []string {
	var out []string
	var cur strings.Builder
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		cur.WriteRune(r)
		if r == '.' || r == '!' || r == '?' || r == '\n' {
			// absorb trailing whitespace so boundaries land cleanly
			for i+1 < len(runes) && (runes[i+1] == ' ' || runes[i+1] == '\n' || runes[i+1] == '\t') {
				i++
				cur.WriteRune(runes[i])
			}
			out = append(out, cur.String())
			cur.Reset()
		}
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

func cutRunes(s string, n int) (head, rest string) {
	if n <= 0 {
		return "", s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s, ""
	}
	return string(runes[:n]), string(runes[n:])
}

func tailRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
