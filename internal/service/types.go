// Package service loads style documents and GeoJSON sources from the data
// directory and carries session events to the viewer.
package service

import "fmt"

// SourceFile represents a source data file (GeoJSON, CSV).
type SourceFile struct {
	Name     string `json:"name" doc:"File name" example:"wards.geojson"`
	Size     string `json:"size" doc:"Human-readable file size" example:"1.2 MB"`
	FileType string `json:"fileType" doc:"File type: GeoJSON or CSV" example:"GeoJSON"`
}

// StyleFile is a style document in the styles directory.
type StyleFile struct {
	Name   string `json:"name" doc:"Style name without extension" example:"glasgow"`
	Layers int    `json:"layers" doc:"Number of style layers"`
	Size   string `json:"size" doc:"Human-readable file size" example:"12.0 KB"`
}

func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
