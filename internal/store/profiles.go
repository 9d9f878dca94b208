// File: internal/store/profiles.go
// Package store provides the persistence layer: file-backed profile storage
// and file- or PostgreSQL-backed form template storage.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

// FileProfileStore reads profiles from a directory of <name>.yaml files.
// The loader is lazy: files are parsed on lookup, so edits take effect
// without a restart.
type FileProfileStore struct {
	dir string
	log *zap.Logger
}

var _ schemas.ProfileStore = (*FileProfileStore)(nil)

// NewFileProfileStore validates the directory and returns a store over it.
func NewFileProfileStore(dir string, logger *zap.Logger) (*FileProfileStore, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("profile directory %q is not accessible: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("profile path %q is not a directory", dir)
	}
	return &FileProfileStore{dir: dir, log: logger.Named("profile_store")}, nil
}

// GetProfileByName loads and validates the profile stored as <name>.yaml.
func (s *FileProfileStore) GetProfileByName(ctx context.Context, name string) (schemas.Profile, error) {
	if err := ctx.Err(); err != nil {
		return schemas.Profile{}, err
	}
	if name == "" || strings.ContainsAny(name, `/\`) {
		return schemas.Profile{}, fmt.Errorf("invalid profile name %q", name)
	}

	path := filepath.Join(s.dir, name+".yaml")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return schemas.Profile{}, fmt.Errorf("profile %q not found in %s", name, s.dir)
	}
	if err != nil {
		return schemas.Profile{}, fmt.Errorf("failed to read profile %q: %w", name, err)
	}

	var p schemas.Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return schemas.Profile{}, fmt.Errorf("failed to parse profile %q: %w", name, err)
	}
	if p.Name == "" {
		p.Name = name
	}
	if p.Email == "" && p.FirstName == "" && p.LastName == "" {
		return schemas.Profile{}, fmt.Errorf("profile %q has no usable identity fields", name)
	}

	s.log.Debug("Profile loaded", zap.String("name", p.Name), zap.String("path", path))
	return p, nil
}

// ListProfiles returns the available profile names, sorted.
func (s *FileProfileStore) ListProfiles() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if name, ok := strings.CutSuffix(e.Name(), ".yaml"); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// SaveProfile writes a profile back to disk as <name>.yaml.
func (s *FileProfileStore) SaveProfile(p schemas.Profile) error {
	if p.Name == "" {
		return fmt.Errorf("cannot save a profile without a name")
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to serialize profile %q: %w", p.Name, err)
	}
	path := filepath.Join(s.dir, p.Name+".yaml")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write profile %q: %w", p.Name, err)
	}
	return nil
}
