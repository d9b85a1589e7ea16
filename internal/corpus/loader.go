package corpus

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	sferrors "github.com/searchfuse/searchfuse/internal/errors"
)

// loadableExts are the document types the loader ingests.
var loadableExts = map[string]bool{
	".txt": true,
	".md":  true,
}

// LoadDir walks dir recursively and returns one Document per .txt/.md file,
// sorted by ID. The ID is the slash-separated path relative to dir; metadata
// carries the source path and extension. An empty directory fails with
// ErrEmptyCorpus.
func LoadDir(dir string) ([]Document, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("corpus dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("corpus path %s is not a directory", dir)
	}

	var docs []Document
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if !loadableExts[ext] {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		text := strings.TrimSpace(string(data))
		if text == "" {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		docs = append(docs, Document{
			ID:   filepath.ToSlash(rel),
			Text: text,
			Metadata: map[string]any{
				"source": path,
				"ext":    strings.TrimPrefix(ext, "."),
			},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, sferrors.ErrEmptyCorpus
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}
