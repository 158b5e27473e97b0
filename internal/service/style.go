package service

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joeblew999/plat-rentmap/internal/style"
)

// StyleService reads style documents from <dataDir>/styles.
type StyleService struct {
	stylesDir string
}

// NewStyleService creates a new style service.
func NewStyleService(dataDir string) *StyleService {
	return &StyleService{stylesDir: filepath.Join(dataDir, "styles")}
}

// StylesDir returns the path to the styles directory.
func (s *StyleService) StylesDir() string { return s.stylesDir }

// List returns the parseable style documents, sorted by name.
func (s *StyleService) List() ([]StyleFile, error) {
	entries, err := os.ReadDir(s.stylesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []StyleFile{}, nil
		}
		return nil, err
	}

	files := []StyleFile{}
	for _, entry := range entries {
		if entry.IsDir() || strings.ToLower(filepath.Ext(entry.Name())) != ".json" {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		doc, err := s.Load(name)
		if err != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, StyleFile{Name: name, Layers: len(doc.Layers), Size: formatSize(info.Size())})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// Load parses the style called name.
func (s *StyleService) Load(name string) (*style.Document, error) {
	if name == "" || name != filepath.Base(name) {
		return nil, fmt.Errorf("style %q: invalid name", name)
	}
	return style.Load(filepath.Join(s.stylesDir, name+".json"))
}
