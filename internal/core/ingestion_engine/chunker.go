package ingestion_engine

// DefaultChunkSize is the chunk length in code points when none is configured.
const DefaultChunkSize = 1000

// Chunk splits text into consecutive pieces of at most max code points.
// Pieces are never empty, never split a multibyte character, and concatenate
// back to text. Empty text yields no pieces.
func Chunk(text string, max int) []string {
	if text == "" {
		return nil
	}
	if max <= 0 {
		max = DefaultChunkSize
	}

	runes := []rune(text)
	out := make([]string, 0, (len(runes)+max-1)/max)
	for start := 0; start < len(runes); start += max {
		end := start + max
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
	}
	return out
}

// approxTokens is a cheap token estimator (~4 chars ≈ 1 token).
func approxTokens(s string) int {
	n := len([]rune(s))
	if n <= 0 {
		return 0
	}
	return (n + 3) / 4
}
