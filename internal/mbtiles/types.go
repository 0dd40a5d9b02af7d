// Package mbtiles stores raster map tiles in MBTiles SQLite databases.
// The render backends use it as a persistent tile cache, one file per backend.
package mbtiles

import (
	"fmt"
	"strconv"
	"strings"
)

// Metadata contains MBTiles metadata fields.
type Metadata struct {
	Name        string // Human-readable tileset identifier
	Format      string // Tile data type (png, jpg, webp)
	Attribution string // Attribution text of the upstream tile source
	Description string
	Type        string // "baselayer" or "overlay"
	Version     string
	Bounds      [4]float64
	MinZoom     int
	MaxZoom     int
}

// ToMap converts Metadata to a map for database insertion.
func (m Metadata) ToMap() map[string]string {
	result := make(map[string]string)

	set := func(k, v string) {
		if v != "" {
			result[k] = v
		}
	}
	set("name", m.Name)
	set("format", m.Format)
	set("attribution", m.Attribution)
	set("description", m.Description)
	set("type", m.Type)
	set("version", m.Version)

	if m.MinZoom > 0 {
		result["minzoom"] = strconv.Itoa(m.MinZoom)
	}
	if m.MaxZoom > 0 {
		result["maxzoom"] = strconv.Itoa(m.MaxZoom)
	}
	if m.Bounds != [4]float64{} {
		result["bounds"] = fmt.Sprintf("%.6f,%.6f,%.6f,%.6f",
			m.Bounds[0], m.Bounds[1], m.Bounds[2], m.Bounds[3])
	}

	return result
}

// parseMetadata is the inverse of ToMap. Unparseable numbers are left zero.
func parseMetadata(values map[string]string) Metadata {
	meta := Metadata{
		Name:        values["name"],
		Format:      values["format"],
		Attribution: values["attribution"],
		Description: values["description"],
		Type:        values["type"],
		Version:     values["version"],
	}
	if i, err := strconv.Atoi(values["minzoom"]); err == nil {
		meta.MinZoom = i
	}
	if i, err := strconv.Atoi(values["maxzoom"]); err == nil {
		meta.MaxZoom = i
	}

	// "minLon,minLat,maxLon,maxLat"
	if parts := strings.Split(values["bounds"], ","); len(parts) == 4 {
		for i, part := range parts {
			if f, err := strconv.ParseFloat(strings.TrimSpace(part), 64); err == nil {
				meta.Bounds[i] = f
			}
		}
	}
	return meta
}
