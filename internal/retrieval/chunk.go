package retrieval

// Chunk splits text into overlapping windows of size runes, each starting
// size-overlap runes after the previous one. The windows cover the whole
// text left to right and the last one ends at the end of the text.
// overlap must be less than size; out-of-range values are clamped.
func Chunk(text string, size, overlap int) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	var chunks []string
	start := 0
	for {
		end := min(start+size, len(runes))
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
		start = max(end-overlap, start+1)
	}
	return chunks
}
