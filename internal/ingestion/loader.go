package ingestion

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Document is one markdown file of the knowledge corpus.
type Document struct {
	// Name is the file name (e.g. "planes.md"), recorded as the chunk source.
	Name string

	// Content is the raw markdown text.
	Content string
}

// LoadDocuments reads every .md file in docsDir, in lexical filename order so
// chunk IDs are stable across rebuilds of the same corpus. Files with only
// whitespace are skipped.
func LoadDocuments(docsDir string) ([]Document, error) {
	info, err := os.Stat(docsDir)
	if err != nil {
		return nil, fmt.Errorf("ingestion: docs directory %s: %w", docsDir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("ingestion: %s is not a directory", docsDir)
	}

	paths, err := filepath.Glob(filepath.Join(docsDir, "*.md"))
	if err != nil {
		return nil, fmt.Errorf("ingestion: listing %s: %w", docsDir, err)
	}

	docs := make([]Document, 0, len(paths))
	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("ingestion: reading %s: %w", path, err)
		}
		content := string(raw)
		if strings.TrimSpace(content) == "" {
			continue
		}
		docs = append(docs, Document{Name: filepath.Base(path), Content: content})
	}
	return docs, nil
}

// Section is a contiguous block of document text under one markdown header.
type Section struct {
	// Source is the file name the section came from.
	Source string

	// Header is the header text, or the file name for content that appears
	// before the first header.
	Header string

	// Level is the header depth (1 for #, 2 for ##, 3 for ###), or 0 for the
	// implicit leading section.
	Level int

	// Text is the section body with surrounding whitespace trimmed.
	Text string
}

// headerRE matches level 1-3 markdown headers. Deeper headers (####) stay
// part of the surrounding section so Q&A blocks keep question and answer
// together.
var headerRE = regexp.MustCompile(`^(#{1,3})\s+(.+)$`)

// ExtractSections splits markdown content into sections at each #, ## or ###
// header. The header text becomes the section label; content before the first
// header is labeled with the file name. Headers with no body text produce no
// section.
func ExtractSections(content, filename string) []Section {
	var sections []Section

	current := Section{Source: filename, Header: filename, Level: 0}
	var body []string

	flush := func() {
		text := strings.TrimSpace(strings.Join(body, "\n"))
		if text != "" {
			current.Text = text
			sections = append(sections, current)
		}
		body = body[:0]
	}

	for _, line := range strings.Split(content, "\n") {
		m := headerRE.FindStringSubmatch(line)
		if m == nil {
			body = append(body, line)
			continue
		}
		flush()
		current = Section{
			Source: filename,
			Header: strings.TrimSpace(m[2]),
			Level:  len(m[1]),
		}
	}
	flush()

	return sections
}
