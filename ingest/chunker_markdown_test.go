package ingest

import (
	"strings"
	"testing"
)

func TestMarkdownChunkerShortDoc(t *testing.T) {
	chunks := NewMarkdownChunker().Chunk("# Hello\n\nShort doc.")
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if !strings.Contains(chunks[0], "# Hello") {
		t.Error("heading marker lost")
	}
}

func TestMarkdownChunkerEmpty(t *testing.T) {
	if got := NewMarkdownChunker().Chunk(""); len(got) != 0 {
		t.Errorf("got %d chunks for empty input", len(got))
	}
}

func TestMarkdownChunkerSplitsOnHeadings(t *testing.T) {
	mc := NewMarkdownChunker(WithMaxChars(200), WithOverlapChars(0))
	text := "# Section One\n\n" + strings.Repeat("Word ", 30) +
		"\n\n# Section Two\n\n" + strings.Repeat("Word ", 30)

	chunks := mc.Chunk(text)
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want at least 2", len(chunks))
	}
	var one, two bool
	for _, c := range chunks {
		one = one || strings.Contains(c, "# Section One")
		two = two || strings.Contains(c, "# Section Two")
	}
	if !one || !two {
		t.Error("a section lost its heading")
	}
}

func TestMarkdownChunkerMergesSmallSections(t *testing.T) {
	mc := NewMarkdownChunker(WithMaxChars(900), WithOverlapChars(150))
	chunks := mc.Chunk("# A\n\nShort.\n\n# B\n\nAlso short.\n\n# C\n\nYep.")
	if len(chunks) != 1 {
		t.Errorf("got %d chunks, want tiny sections merged into 1", len(chunks))
	}
}

func TestMarkdownChunkerFallbackOnLargeSection(t *testing.T) {
	mc := NewMarkdownChunker(WithMaxChars(100), WithOverlapChars(20))
	chunks := mc.Chunk("# Big Section\n\n" + strings.Repeat("word ", 80))
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want the oversized section split", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > 100 {
			t.Errorf("chunk %d is %d chars, budget 100", i, len(c))
		}
	}
}

func TestMarkdownChunkerKBGeometry(t *testing.T) {
	sections := make([]string, 6)
	for i := range sections {
		sections[i] = "## Topic\n\n" + strings.Repeat("A sentence about the topic. ", 12)
	}
	mc := NewMarkdownChunker(WithMaxChars(900), WithOverlapChars(150))
	chunks := mc.Chunk(strings.Join(sections, "\n\n"))
	if len(chunks) == 0 {
		t.Fatal("expected chunks")
	}
	for i, c := range chunks {
		if len(c) > 900 {
			t.Errorf("chunk %d is %d chars, budget 900", i, len(c))
		}
		if strings.TrimSpace(c) == "" {
			t.Errorf("chunk %d is blank", i)
		}
	}
}
