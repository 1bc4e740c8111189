package ingestion

import "strings"

// Chunking defaults. Sizes are in runes, not bytes, so accented Spanish text
// never splits mid-character.
const (
	// DefaultChunkSize is the maximum chunk length.
	DefaultChunkSize = 1024

	// DefaultChunkOverlap is the number of trailing runes repeated at the
	// start of the next chunk to preserve context across the cut.
	DefaultChunkOverlap = 128

	// atomicMaxSize is the hard cap for atomic blocks (markdown tables).
	// A table longer than this falls back to sliding-window splitting.
	atomicMaxSize = 2048

	// breakWindow is how far back from the chunk boundary to look for a
	// space or newline to cut at.
	breakWindow = 80
)

// ChunkText splits text into overlapping chunks of at most size runes.
// Markdown tables are kept whole up to atomicMaxSize, with the line
// immediately preceding the table (usually its title) attached. Everything
// else goes through a sliding window that prefers to cut at the last space
// or newline within breakWindow of the boundary.
func ChunkText(text string, size, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len([]rune(text)) <= size {
		return []string{text}
	}

	var chunks []string
	for _, b := range splitAtomicBlocks(text) {
		block := strings.TrimSpace(b.text)
		if block == "" {
			continue
		}
		if b.atomic {
			if len([]rune(block)) <= atomicMaxSize {
				chunks = append(chunks, block)
			} else {
				chunks = append(chunks, slidingWindow(block, atomicMaxSize, overlap)...)
			}
			continue
		}
		chunks = append(chunks, slidingWindow(block, size, overlap)...)
	}
	return chunks
}

// block is a run of text flagged atomic when it must not be split.
type block struct {
	text   string
	atomic bool
}

// splitAtomicBlocks separates markdown tables from surrounding prose. A table
// is a contiguous run of lines starting with "|"; the line right before it is
// pulled into the table block so the table keeps its title.
func splitAtomicBlocks(text string) []block {
	var (
		blocks  []block
		buf     []string
		inTable bool
	)

	for _, line := range strings.Split(text, "\n") {
		isTableLine := strings.HasPrefix(strings.TrimSpace(line), "|")

		switch {
		case isTableLine && !inTable:
			var headerLine string
			if len(buf) > 0 {
				headerLine = buf[len(buf)-1]
				buf = buf[:len(buf)-1]
				if len(buf) > 0 {
					blocks = append(blocks, block{text: strings.Join(buf, "\n")})
					buf = nil
				}
			}
			inTable = true
			if headerLine != "" {
				buf = append(buf, headerLine)
			}
			buf = append(buf, line)

		case isTableLine && inTable:
			buf = append(buf, line)

		case !isTableLine && inTable:
			blocks = append(blocks, block{text: strings.Join(buf, "\n"), atomic: true})
			buf = []string{line}
			inTable = false

		default:
			buf = append(buf, line)
		}
	}

	if len(buf) > 0 {
		blocks = append(blocks, block{text: strings.Join(buf, "\n"), atomic: inTable})
	}
	return blocks
}

// slidingWindow splits text into chunks of at most size runes with the given
// overlap, cutting at the last space or newline within breakWindow of the
// boundary when one exists.
func slidingWindow(text string, size, overlap int) []string {
	runes := []rune(text)
	if len(runes) <= size {
		if t := strings.TrimSpace(text); t != "" {
			return []string{t}
		}
		return nil
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + size
		if end >= len(runes) {
			if chunk := strings.TrimSpace(string(runes[start:])); chunk != "" {
				chunks = append(chunks, chunk)
			}
			break
		}

		searchStart := end - breakWindow
		if searchStart < start {
			searchStart = start
		}
		lastBreak := -1
		for i := end - 1; i >= searchStart; i-- {
			if runes[i] == ' ' || runes[i] == '\n' {
				lastBreak = i
				break
			}
		}
		if lastBreak > start {
			end = lastBreak
		}

		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}

		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}
