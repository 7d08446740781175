package dirsource

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/atlasdocs/kb-assistant/internal/core/domain"
)

// Source loads the scraped knowledge-base articles from a local directory.
// Each .txt or .md file becomes one document; the scraping pipeline is
// responsible for producing clean UTF-8 text.
type Source struct {
	dir string
	log *slog.Logger
}

func New(dir string, log *slog.Logger) *Source {
	if log == nil {
		log = slog.Default()
	}
	return &Source{dir: dir, log: log}
}

func (s *Source) LoadDocuments(ctx context.Context) ([]domain.Document, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read article dir %s: %w", s.dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if !isArticleFile(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	docs := make([]domain.Document, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		path := filepath.Join(s.dir, name)
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read article %s: %w", name, err)
		}
		if !utf8.Valid(raw) {
			s.log.Warn("skipping non-utf8 article", "file", name)
			continue
		}

		content := strings.TrimSpace(string(raw))
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("stat article %s: %w", name, err)
		}

		sum := sha256.Sum256([]byte(content))
		docs = append(docs, domain.Document{
			ID:          docID(name),
			Title:       titleFromFilename(name),
			SourceURI:   "file://" + path,
			Content:     content,
			ContentHash: hex.EncodeToString(sum[:]),
			FetchedAt:   info.ModTime().UTC(),
		})
	}
	return docs, nil
}

func isArticleFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".md":
		return true
	default:
		return false
	}
}

// docID is stable across content edits so re-scrapes keep document identity.
func docID(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	return strings.ToLower(strings.ReplaceAll(base, " ", "-"))
}

func titleFromFilename(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	base = strings.ReplaceAll(base, "_", " ")
	base = strings.ReplaceAll(base, "-", " ")
	return strings.TrimSpace(base)
}
