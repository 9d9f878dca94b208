// File: internal/store/templates_file.go
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// FileTemplateStore keeps learned form templates as one JSON file per URL
// under a directory. Filenames are derived from the normalized URL so a
// template written for "https://example.com/signup/" replays for
// "https://example.com/signup".
type FileTemplateStore struct {
	dir string
	log *zap.Logger

	mu sync.Mutex // serializes read-modify-write on version bumps
}

var _ schemas.TemplateStore = (*FileTemplateStore)(nil)

// NewFileTemplateStore creates the directory if needed.
func NewFileTemplateStore(dir string, logger *zap.Logger) (*FileTemplateStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create template directory %q: %w", dir, err)
	}
	return &FileTemplateStore{dir: dir, log: logger.Named("template_store")}, nil
}

// GetTemplate returns the template recorded for url, or ErrTemplateNotFound.
func (s *FileTemplateStore) GetTemplate(ctx context.Context, rawURL string) (schemas.FormTemplate, error) {
	if err := ctx.Err(); err != nil {
		return schemas.FormTemplate{}, err
	}

	data, err := os.ReadFile(s.pathFor(rawURL))
	if os.IsNotExist(err) {
		return schemas.FormTemplate{}, schemas.ErrTemplateNotFound
	}
	if err != nil {
		return schemas.FormTemplate{}, fmt.Errorf("failed to read template for %q: %w", rawURL, err)
	}

	var tpl schemas.FormTemplate
	if err := json.Unmarshal(data, &tpl); err != nil {
		return schemas.FormTemplate{}, fmt.Errorf("corrupt template for %q: %w", rawURL, err)
	}
	return tpl, nil
}

// SaveTemplate writes tpl, bumping the version past any stored one.
func (s *FileTemplateStore) SaveTemplate(ctx context.Context, tpl schemas.FormTemplate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if tpl.URL == "" {
		return fmt.Errorf("cannot save a template without a URL")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, err := s.GetTemplate(ctx, tpl.URL); err == nil {
		if tpl.Version <= existing.Version {
			tpl.Version = existing.Version + 1
		}
	} else if tpl.Version <= 0 {
		tpl.Version = 1
	}

	data, err := json.MarshalIndent(tpl, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize template for %q: %w", tpl.URL, err)
	}
	path := s.pathFor(tpl.URL)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write template for %q: %w", tpl.URL, err)
	}
	s.log.Debug("Template saved",
		zap.String("url", tpl.URL),
		zap.Int("version", tpl.Version),
		zap.String("path", path),
	)
	return nil
}

// pathFor maps a URL to its template file. A readable host prefix eases
// inspection; the hash carries the uniqueness.
func (s *FileTemplateStore) pathFor(rawURL string) string {
	normalized := normalizeURL(rawURL)
	sum := sha256.Sum256([]byte(normalized))
	host := "unknown"
	if u, err := url.Parse(normalized); err == nil && u.Host != "" {
		host = strings.ReplaceAll(u.Host, ":", "_")
	}
	return filepath.Join(s.dir, fmt.Sprintf("%s_%s.json", host, hex.EncodeToString(sum[:8])))
}

// normalizeURL strips fragments and trailing slashes so trivially different
// spellings of the same page share a template.
func normalizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.Fragment = ""
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String()
}
