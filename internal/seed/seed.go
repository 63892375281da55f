// Package seed reads tier catalog files.
//
// A catalog file maps tiers to metric limits, with -1 meaning unlimited:
//
//	version = 1
//
//	[limits.free]
//	deals_per_month = 5
//
//	[limits.enterprise]
//	deals_per_month = -1
//
// The same document may be written as YAML. The format is picked from the
// file extension.
package seed

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/DukeRupert/quotaledger/internal/domain"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format is a catalog file encoding.
type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

const currentVersion = 1

var ErrUnsupportedFormat = errors.New("unsupported catalog file format")

type fileSchema struct {
	Version int                         `toml:"version" yaml:"version"`
	Limits  map[string]map[string]int64 `toml:"limits" yaml:"limits"`
}

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// Load reads and parses a catalog file.
func Load(path string) ([]domain.TierLimit, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}

	limits, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return limits, nil
}

// Parse decodes a catalog document. Entries come back ordered by tier,
// then metric. Metric names are normalized but not checked against an
// allow-list; the catalog service does that on import.
func Parse(data []byte, format Format) ([]domain.TierLimit, error) {
	var file fileSchema

	switch format {
	case FormatTOML:
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&file); err != nil {
			return nil, fmt.Errorf("decode toml: %w", err)
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&file); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	if file.Version != 0 && file.Version != currentVersion {
		return nil, fmt.Errorf("unsupported catalog version %d", file.Version)
	}

	for rawTier := range file.Limits {
		if _, err := domain.ParseTier(rawTier); err != nil {
			return nil, err
		}
	}

	var limits []domain.TierLimit
	for _, tier := range domain.Tiers {
		for rawTier, metrics := range file.Limits {
			if !strings.EqualFold(strings.TrimSpace(rawTier), string(tier)) {
				continue
			}
			for rawMetric, value := range metrics {
				l := domain.TierLimit{
					Tier:   tier,
					Metric: domain.Metric(strings.ToLower(strings.TrimSpace(rawMetric))),
					Limit:  domain.Limit(value),
				}
				if err := l.Validate(); err != nil {
					return nil, fmt.Errorf("%s.%s: %w", rawTier, rawMetric, err)
				}
				limits = append(limits, l)
			}
		}
	}

	sort.SliceStable(limits, func(i, j int) bool {
		if limits[i].Tier != limits[j].Tier {
			return tierIndex(limits[i].Tier) < tierIndex(limits[j].Tier)
		}
		return limits[i].Metric < limits[j].Metric
	})

	return limits, nil
}

func tierIndex(t domain.Tier) int {
	for i, tier := range domain.Tiers {
		if tier == t {
			return i
		}
	}
	return len(domain.Tiers)
}
