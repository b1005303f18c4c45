package knowledge

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ledongthuc/pdf"
	"gopkg.in/yaml.v3"
)

type headerMeta struct {
	ID          string   `yaml:"kb_id"`
	Category    string   `yaml:"category"`
	Tags        []string `yaml:"tags"`
	LastUpdated string   `yaml:"last_updated"`
}

// Ingestor parses the knowledge directory into the index. Header metadata is
// read once per load; unchanged files (by content hash) skip the graph sync
// on reload.
type Ingestor struct {
	index  *Index
	graph  *Graph
	logger *log.Logger

	mu     sync.Mutex
	hashes map[string]string
}

func NewIngestor(index *Index, graph *Graph, logger *log.Logger) *Ingestor {
	if logger == nil {
		logger = log.Default()
	}
	return &Ingestor{
		index:  index,
		graph:  graph,
		logger: logger,
		hashes: make(map[string]string),
	}
}

// LoadDirectory parses every .md and .pdf under dir and replaces the index
// contents. Returns the number of documents loaded.
func (s *Ingestor) LoadDirectory(ctx context.Context, dir string) (int, error) {
	if _, err := os.Stat(dir); err != nil {
		return 0, fmt.Errorf("knowledge directory: %w", err)
	}

	paths := make([]string, 0)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(d.Name())) {
		case ".md", ".pdf":
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("walk knowledge directory: %w", err)
	}

	docs := make([]Document, 0, len(paths))
	changed := make([]Document, 0)
	for _, path := range paths {
		doc, docChanged, err := s.loadFile(path)
		if err != nil {
			s.logger.Printf("skip %s: %v", path, err)
			continue
		}
		docs = append(docs, doc)
		if docChanged {
			changed = append(changed, doc)
		}
	}

	s.index.ReplaceAll(docs)

	if s.graph != nil {
		for _, doc := range changed {
			if err := s.graph.SyncAdvice(ctx, doc); err != nil {
				s.logger.Printf("graph sync failed for %s: %v", doc.ID, err)
			}
		}
	}

	return len(docs), nil
}

func (s *Ingestor) loadFile(path string) (Document, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, false, fmt.Errorf("read file: %w", err)
	}

	var doc Document
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md":
		doc, err = parseMarkdown(data, path)
	case ".pdf":
		doc, err = parsePDF(data, path)
	default:
		err = fmt.Errorf("unsupported extension")
	}
	if err != nil {
		return Document{}, false, err
	}
	if doc.ID == "" {
		return Document{}, false, fmt.Errorf("missing kb_id header")
	}

	hash := sha256.Sum256(data)
	hashHex := hex.EncodeToString(hash[:])

	s.mu.Lock()
	changed := s.hashes[path] != hashHex
	s.hashes[path] = hashHex
	s.mu.Unlock()

	return doc, changed, nil
}

// parseMarkdown splits the YAML front matter from the body. Front matter is
// delimited by --- lines at the top of the file.
func parseMarkdown(data []byte, path string) (Document, error) {
	content := strings.ReplaceAll(string(data), "\r\n", "\n")

	var meta headerMeta
	body := content
	if strings.HasPrefix(content, "---\n") {
		rest := content[len("---\n"):]
		end := strings.Index(rest, "\n---")
		if end < 0 {
			return Document{}, fmt.Errorf("unterminated front matter")
		}
		if err := yaml.Unmarshal([]byte(rest[:end]), &meta); err != nil {
			return Document{}, fmt.Errorf("parse front matter: %w", err)
		}
		body = rest[end+len("\n---"):]
		if idx := strings.Index(body, "\n"); idx >= 0 {
			body = body[idx+1:]
		}
	}

	body = strings.TrimSpace(body)
	title := extractTitle(body, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))

	return Document{
		ID:          meta.ID,
		Category:    meta.Category,
		Tags:        meta.Tags,
		LastUpdated: meta.LastUpdated,
		Title:       title,
		Content:     body,
		Path:        path,
	}, nil
}

// parsePDF extracts plain text and reads the same header fields from
// key: value lines at the top of the document. Category falls back to the
// parent directory name.
func parsePDF(data []byte, path string) (Document, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Document{}, fmt.Errorf("open pdf: %w", err)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return Document{}, fmt.Errorf("extract pdf text: %w", err)
	}
	buf := &bytes.Buffer{}
	if _, err := io.Copy(buf, plain); err != nil {
		return Document{}, fmt.Errorf("read pdf text: %w", err)
	}

	content := strings.ReplaceAll(buf.String(), "\r", "\n")
	meta, body := parseKeyValueHeader(content)
	if meta.Category == "" {
		meta.Category = filepath.Base(filepath.Dir(path))
	}

	title := extractTitle(body, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))

	return Document{
		ID:          meta.ID,
		Category:    meta.Category,
		Tags:        meta.Tags,
		LastUpdated: meta.LastUpdated,
		Title:       title,
		Content:     strings.TrimSpace(body),
		Path:        path,
	}, nil
}

func parseKeyValueHeader(content string) (headerMeta, string) {
	var meta headerMeta
	lines := strings.Split(content, "\n")
	i := 0
	for ; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "" {
			continue
		}
		key, value, found := strings.Cut(trimmed, ":")
		if !found {
			break
		}
		handled := true
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "kb_id":
			meta.ID = value
		case "category":
			meta.Category = value
		case "tags":
			for _, tag := range strings.Split(value, ",") {
				if tag = strings.TrimSpace(tag); tag != "" {
					meta.Tags = append(meta.Tags, tag)
				}
			}
		case "last_updated":
			meta.LastUpdated = value
		default:
			handled = false
		}
		if !handled {
			break
		}
	}
	return meta, strings.Join(lines[i:], "\n")
}

func extractTitle(content, fallback string) string {
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			return strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
		}
	}
	for _, line := range strings.Split(content, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return fallback
}
