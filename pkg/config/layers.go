package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type LayerFile struct {
	Layers []Layer `yaml:"layers" validate:"required,min=1,dive"`
}

// Layer describes one cached WMS layer.
type Layer struct {
	Name       string            `yaml:"name" validate:"required"`
	URLs       []string          `yaml:"urls" validate:"required,min=1,dive,url"`
	WMSLayers  string            `yaml:"wms_layers"`
	Styles     string            `yaml:"styles"`
	Version    string            `yaml:"version" validate:"omitempty,oneof=1.1.1 1.3.0"`
	SRS        []string          `yaml:"srs" validate:"required,min=1,dive,required"`
	Formats    []string          `yaml:"formats"`
	TileWidth  int               `yaml:"tile_width" validate:"gte=0"`
	TileHeight int               `yaml:"tile_height" validate:"gte=0"`
	MetaX      int               `yaml:"meta_x" validate:"gt=0"`
	MetaY      int               `yaml:"meta_y" validate:"gt=0"`
	MinZoom    int               `yaml:"min_zoom" validate:"gte=0"`
	MaxZoom    int               `yaml:"max_zoom" validate:"gtefield=MinZoom,lte=30"`
	Params     map[string]string `yaml:"params"`
	// ExpireCache and ExpireClients take "client", "backend" or a duration.
	ExpireCache   string    `yaml:"expire_cache"`
	ExpireClients string    `yaml:"expire_clients"`
	Bounds        []float64 `yaml:"bounds" validate:"omitempty,len=4"`
}

func LoadLayers(path string) (*LayerFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read layers file: %w", err)
	}

	return ParseLayers(data)
}

func ParseLayers(data []byte) (*LayerFile, error) {
	var lf LayerFile
	if err := yaml.Unmarshal(data, &lf); err != nil {
		return nil, fmt.Errorf("failed to parse layers file: %w", err)
	}

	for i := range lf.Layers {
		applyLayerDefaults(&lf.Layers[i])
	}

	if err := validator.New().Struct(lf); err != nil {
		return nil, fmt.Errorf("invalid layers file: %w", err)
	}

	seen := make(map[string]struct{}, len(lf.Layers))
	for _, l := range lf.Layers {
		if _, ok := seen[l.Name]; ok {
			return nil, fmt.Errorf("duplicate layer %q", l.Name)
		}
		seen[l.Name] = struct{}{}
	}

	return &lf, nil
}

func applyLayerDefaults(l *Layer) {
	if l.WMSLayers == "" {
		l.WMSLayers = l.Name
	}
	if l.Version == "" {
		l.Version = "1.1.1"
	}
	if len(l.Formats) == 0 {
		l.Formats = []string{"image/png"}
	}
	if l.TileWidth == 0 {
		l.TileWidth = 256
	}
	if l.TileHeight == 0 {
		l.TileHeight = 256
	}
	if l.MaxZoom == 0 {
		l.MaxZoom = 20
	}
}
