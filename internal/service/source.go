package service

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-rentmap/internal/style"
)

// SourceService reads source data files.
type SourceService struct {
	sourcesDir string
}

// NewSourceService creates a new source service.
func NewSourceService(dataDir string) *SourceService {
	return &SourceService{
		sourcesDir: filepath.Join(dataDir, "sources"),
	}
}

// Supported source file extensions and their types
var extToType = map[string]string{
	".geojson": "GeoJSON",
	".json":    "GeoJSON",
	".csv":     "CSV",
}

// List returns all available source files.
func (s *SourceService) List() ([]SourceFile, error) {
	entries, err := os.ReadDir(s.sourcesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []SourceFile{}, nil
		}
		return nil, err
	}

	files := []SourceFile{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		ext := strings.ToLower(filepath.Ext(entry.Name()))
		fileType, ok := extToType[ext]
		if !ok {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		files = append(files, SourceFile{
			Name:     entry.Name(),
			Size:     formatSize(info.Size()),
			FileType: fileType,
		})
	}

	return files, nil
}

// SourcesDir returns the path to the sources directory.
func (s *SourceService) SourcesDir() string {
	return s.sourcesDir
}

// LoadGeoJSON reads a feature collection from the sources directory.
func (s *SourceService) LoadGeoJSON(name string) (*geojson.FeatureCollection, error) {
	if name != filepath.Base(name) {
		return nil, fmt.Errorf("source %q: must be a file name", name)
	}
	data, err := os.ReadFile(filepath.Join(s.sourcesDir, name))
	if err != nil {
		return nil, fmt.Errorf("reading source %s: %w", name, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parsing source %s: %w", name, err)
	}
	return fc, nil
}

// ForStyle loads every GeoJSON source doc references by file name, keyed
// by style source id. Remote and vector sources are skipped.
func (s *SourceService) ForStyle(doc *style.Document) (map[string]*geojson.FeatureCollection, error) {
	out := make(map[string]*geojson.FeatureCollection)
	for id, src := range doc.Sources {
		if src.Type != "geojson" || src.Data == "" || strings.Contains(src.Data, "://") {
			continue
		}
		fc, err := s.LoadGeoJSON(src.Data)
		if err != nil {
			return nil, err
		}
		out[id] = fc
	}
	return out, nil
}
