package ingestion

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// knowledgeMetaFile is the optional policy file shipped alongside the corpus.
const knowledgeMetaFile = "metadata.json"

// KnowledgeMeta is corpus-level policy read from metadata.json in the docs
// directory. It travels with the snapshot so the serving side configures the
// query validator from the same source the corpus was built from.
type KnowledgeMeta struct {
	// Domain names the service area the assistant answers for.
	Domain string `json:"domain"`

	// ForbiddenTopics lists topics the validator rejects queries about.
	ForbiddenTopics []string `json:"forbidden_topics"`
}

// LoadKnowledgeMeta reads metadata.json from docsDir. A missing file is not
// an error: the zero value is returned and downstream defaults apply.
func LoadKnowledgeMeta(docsDir string) (KnowledgeMeta, error) {
	var meta KnowledgeMeta

	raw, err := os.ReadFile(filepath.Join(docsDir, knowledgeMetaFile))
	if errors.Is(err, fs.ErrNotExist) {
		return meta, nil
	}
	if err != nil {
		return meta, fmt.Errorf("ingestion: reading %s: %w", knowledgeMetaFile, err)
	}

	if err := json.Unmarshal(raw, &meta); err != nil {
		return meta, fmt.Errorf("ingestion: parsing %s: %w", knowledgeMetaFile, err)
	}
	return meta, nil
}
