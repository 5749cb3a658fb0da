package service

import "strings"

// ChunkConfig controls document chunking.
type ChunkConfig struct {
	MaxChars int
	Overlap  int
}

// DefaultChunkConfig provides sane defaults for chunking.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		MaxChars: 500,
		Overlap:  50,
	}
}

// separators is the split hierarchy, coarsest first: paragraph, line,
// sentence, word. The hard rune cut is the fallback of last resort.
var separators = []string{"\n\n", "\n", ". ", " "}

// ChunkText splits text into chunks of at most cfg.MaxChars runes, with
// consecutive chunks overlapping by cfg.Overlap runes. Cuts prefer the
// coarsest separator present in the window. The split is deterministic and
// covers the input with no gaps; blank input yields no chunks.
func ChunkText(text string, cfg ChunkConfig) []string {
	if cfg.MaxChars <= 0 {
		cfg = DefaultChunkConfig()
	}
	if cfg.Overlap < 0 || cfg.Overlap >= cfg.MaxChars {
		cfg.Overlap = 0
	}

	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= cfg.MaxChars {
		return []string{string(runes)}
	}

	chunks := make([]string, 0, len(runes)/cfg.MaxChars+1)
	start := 0
	for start < len(runes) {
		end := start + cfg.MaxChars
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}

		cut := cutPoint(runes, start, end)
		chunks = append(chunks, string(runes[start:cut]))

		next := cut - cfg.Overlap
		if next <= start {
			next = cut
		}
		start = next
	}

	return chunks
}

// cutPoint finds where to end the chunk beginning at start, given a hard
// limit of end. It takes the last occurrence of the coarsest separator in
// the window, or end itself when no separator is present.
func cutPoint(runes []rune, start, end int) int {
	window := runes[start:end]
	for _, sep := range separators {
		if idx := lastSeparator(window, sep); idx > 0 {
			return start + idx + len([]rune(sep))
		}
	}
	return end
}

// lastSeparator returns the rune index of the last occurrence of sep in
// window, or -1. Separators are ASCII, so rune comparison is exact.
func lastSeparator(window []rune, sep string) int {
	sepRunes := []rune(sep)
	for i := len(window) - len(sepRunes); i >= 0; i-- {
		match := true
		for j, r := range sepRunes {
			if window[i+j] != r {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
