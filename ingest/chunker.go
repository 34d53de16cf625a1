package ingest

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Chunker splits text into chunks suitable for embedding.
type Chunker interface {
	Chunk(text string) []string
}

// ChunkerOption configures a chunker implementation.
type ChunkerOption func(*chunkerConfig)

type chunkerConfig struct {
	maxChars     int
	overlapChars int
}

// Defaults match the knowledge-base index geometry.
func defaultChunkerConfig() chunkerConfig {
	return chunkerConfig{maxChars: 900, overlapChars: 150}
}

// WithMaxChars sets the maximum characters per chunk.
func WithMaxChars(n int) ChunkerOption {
	return func(c *chunkerConfig) { c.maxChars = n }
}

// WithOverlapChars sets the overlap carried between consecutive chunks.
func WithOverlapChars(n int) ChunkerOption {
	return func(c *chunkerConfig) { c.overlapChars = n }
}

// RecursiveChunker splits on paragraph boundaries first, then sentences,
// then words. Sentence detection skips common abbreviations (Mr., Dr.,
// e.g., i.e.), decimal numbers, and recognizes CJK sentence punctuation.
type RecursiveChunker struct {
	cfg chunkerConfig
}

// NewRecursiveChunker creates a RecursiveChunker with the given options.
func NewRecursiveChunker(opts ...ChunkerOption) *RecursiveChunker {
	cfg := defaultChunkerConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return &RecursiveChunker{cfg: cfg}
}

// Chunk splits text into overlapping chunks of at most maxChars characters.
func (rc *RecursiveChunker) Chunk(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= rc.cfg.maxChars {
		return []string{text}
	}

	var segments []string
	for _, p := range strings.Split(text, "\n\n") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if len(p) <= rc.cfg.maxChars {
			segments = append(segments, p)
			continue
		}
		segments = append(segments, rc.splitSentences(p)...)
	}
	return rc.mergeOverlap(segments)
}

// splitSentences packs whole sentences into segments no larger than
// maxChars, falling back to word splitting for oversized sentences.
func (rc *RecursiveChunker) splitSentences(text string) []string {
	bounds := findSentenceBoundaries(text)
	var sentences []string
	start := 0
	for _, b := range bounds {
		if s := strings.TrimSpace(text[start:b]); s != "" {
			sentences = append(sentences, s)
		}
		start = b
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		sentences = append(sentences, s)
	}
	if len(sentences) == 0 {
		return rc.splitWords(text)
	}

	var segments []string
	var cur strings.Builder
	for _, s := range sentences {
		if len(s) > rc.cfg.maxChars {
			if cur.Len() > 0 {
				segments = append(segments, cur.String())
				cur.Reset()
			}
			segments = append(segments, rc.splitWords(s)...)
			continue
		}
		if cur.Len() > 0 && cur.Len()+1+len(s) > rc.cfg.maxChars {
			segments = append(segments, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(s)
	}
	if cur.Len() > 0 {
		segments = append(segments, cur.String())
	}
	return segments
}

func (rc *RecursiveChunker) splitWords(text string) []string {
	maxChars := rc.cfg.maxChars
	var segments []string
	var cur strings.Builder
	for _, word := range strings.Fields(text) {
		// Pathological tokens longer than a whole chunk are hard-cut.
		if len(word) > maxChars {
			if cur.Len() > 0 {
				segments = append(segments, cur.String())
				cur.Reset()
			}
			for i := 0; i < len(word); i += maxChars {
				end := i + maxChars
				if end > len(word) {
					end = len(word)
				}
				segments = append(segments, word[i:end])
			}
			continue
		}
		if cur.Len() > 0 && cur.Len()+1+len(word) > maxChars {
			segments = append(segments, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(word)
	}
	if cur.Len() > 0 {
		segments = append(segments, cur.String())
	}
	return segments
}

// mergeOverlap packs segments into chunks up to maxChars, carrying a tail
// of the previous chunk into the next one so context survives the cut.
func (rc *RecursiveChunker) mergeOverlap(segments []string) []string {
	var chunks []string
	var cur strings.Builder
	for _, seg := range segments {
		if cur.Len() > 0 && cur.Len()+1+len(seg) > rc.cfg.maxChars {
			chunk := cur.String()
			chunks = append(chunks, chunk)
			cur.Reset()
			if tail := overlapTail(chunk, rc.cfg.overlapChars); tail != "" && len(tail)+1+len(seg) <= rc.cfg.maxChars {
				cur.WriteString(tail)
			}
		}
		if cur.Len() > 0 {
			cur.WriteByte('\n')
		}
		cur.WriteString(seg)
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}

	out := chunks[:0]
	for _, c := range chunks {
		if strings.TrimSpace(c) != "" {
			out = append(out, c)
		}
	}
	return out
}

// overlapTail returns the last n characters of text, trimmed forward to the
// next word boundary so the overlap never starts mid-word.
func overlapTail(text string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(text) <= n {
		return text
	}
	tail := text[len(text)-n:]
	if idx := strings.IndexByte(tail, ' '); idx >= 0 {
		return strings.TrimSpace(tail[idx+1:])
	}
	return strings.TrimSpace(tail)
}

// abbreviations whose trailing dot is not a sentence boundary.
var abbreviations = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "dr": true,
	"prof": true, "sr": true, "jr": true,
	"vs": true, "etc": true, "inc": true, "ltd": true,
	"e.g": true, "i.e": true, "viz": true, "al": true,
	"approx": true, "dept": true, "est": true,
	"fig": true, "no": true, "vol": true,
}

func isAbbreviation(text string, dotPos int) bool {
	start := dotPos
	for start > 0 {
		r, size := utf8.DecodeLastRuneInString(text[:start])
		if !unicode.IsLetter(r) && r != '.' {
			break
		}
		start -= size
	}
	return abbreviations[strings.ToLower(text[start:dotPos])]
}

func isDecimalDot(text string, dotPos int) bool {
	if dotPos == 0 || dotPos+1 >= len(text) {
		return false
	}
	return text[dotPos-1] >= '0' && text[dotPos-1] <= '9' &&
		text[dotPos+1] >= '0' && text[dotPos+1] <= '9'
}

// findSentenceBoundaries returns byte positions where the text may be cut
// at a sentence end. ASCII terminators must be followed by whitespace; a
// space additionally needs a following capital. CJK terminators always end
// a sentence.
func findSentenceBoundaries(text string) []int {
	var bounds []int
	for i, r := range text {
		switch r {
		case '。', '！', '？':
			bounds = append(bounds, i+utf8.RuneLen(r))
		case '.', '!', '?':
			if r == '.' && (isDecimalDot(text, i) || isAbbreviation(text, i)) {
				continue
			}
			rest := text[i+1:]
			if rest == "" {
				continue
			}
			next, size := utf8.DecodeRuneInString(rest)
			switch next {
			case '\n':
				bounds = append(bounds, i+1)
			case ' ':
				after := rest[size:]
				if after == "" {
					bounds = append(bounds, len(text))
				} else if r2, _ := utf8.DecodeRuneInString(after); unicode.IsUpper(r2) {
					bounds = append(bounds, i+1+size)
				}
			}
		}
	}
	return bounds
}
