package corpus

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"lens/internal/domain"
)

// FSSource reads a corpus from a directory: image files matched by glob
// patterns, optionally described by a yaml manifest. Manifest entries without
// an image file are still listed (they carry text content only).
type FSSource struct {
	root     string
	includes []string
	excludes []string
	manifest map[string]manifestEntry // keyed by relative image path
	extra    []manifestEntry          // entries with no image reference
}

type manifestFile struct {
	Items []manifestEntry `yaml:"items"`
}

type manifestEntry struct {
	ID          string `yaml:"id"`
	Description string `yaml:"description"`
	Image       string `yaml:"image"`
}

// NewFSSource creates a filesystem corpus rooted at root. manifestPath is
// optional; an empty string or a missing file means no manifest.
func NewFSSource(root string, includes, excludes []string, manifestPath string) (*FSSource, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if len(includes) == 0 {
		includes = []string{"**/*.jpg", "**/*.jpeg", "**/*.png", "**/*.gif", "**/*.webp"}
	}

	s := &FSSource{
		root:     root,
		includes: includes,
		excludes: excludes,
		manifest: make(map[string]manifestEntry),
	}

	if manifestPath != "" {
		if err := s.loadManifest(manifestPath); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *FSSource) loadManifest(path string) error {
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.root, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read manifest: %w", err)
	}

	var mf manifestFile
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return fmt.Errorf("parse manifest: %w", err)
	}

	for _, entry := range mf.Items {
		if entry.ID == "" {
			return fmt.Errorf("manifest entry missing id (description %q)", entry.Description)
		}
		if entry.Image == "" {
			s.extra = append(s.extra, entry)
			continue
		}
		s.manifest[filepath.ToSlash(entry.Image)] = entry
	}
	return nil
}

func (s *FSSource) Items(ctx context.Context) ([]domain.Item, error) {
	var items []domain.Item

	err := filepath.Walk(s.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if info.IsDir() {
			if s.matches(s.excludes, rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if !s.matches(s.includes, rel) || s.matches(s.excludes, rel) {
			return nil
		}

		item := domain.Item{ImagePath: path}
		if entry, ok := s.manifest[rel]; ok {
			item.ID = entry.ID
			item.Description = entry.Description
		} else {
			item.ID = pathID(rel)
			item.Description = describeFilename(rel)
		}
		items = append(items, item)
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, entry := range s.extra {
		items = append(items, domain.Item{ID: entry.ID, Description: entry.Description})
	}

	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (s *FSSource) Content(ctx context.Context, item domain.Item) ([]byte, error) {
	if item.ImagePath == "" {
		return nil, fmt.Errorf("item %s has no image content", item.ID)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.ReadFile(item.ImagePath)
}

func (s *FSSource) matches(patterns []string, path string) bool {
	for _, pattern := range patterns {
		if ok, err := doublestar.Match(pattern, path); err == nil && ok {
			return true
		}
	}
	return false
}

// pathID derives a stable item id from the relative path.
func pathID(rel string) string {
	hash := sha256.Sum256([]byte(rel))
	return hex.EncodeToString(hash[:8])
}

// describeFilename turns "flowers/red-rose_01.jpg" into "red rose 01".
func describeFilename(rel string) string {
	base := filepath.Base(rel)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.NewReplacer("-", " ", "_", " ").Replace(base)
	return strings.Join(strings.Fields(base), " ")
}
