package domain

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// RegionUnknown is the bucket for values that do not normalize to any
// administrative region.
const RegionUnknown = "unknown"

// defaultRegions is the fixed enumeration of administrative regions used by
// the map aggregation. A deployment may override it from a yaml file.
var defaultRegions = []string{
	"capital",
	"north",
	"northeast",
	"east",
	"southeast",
	"south",
	"southwest",
	"west",
	"northwest",
	"central",
	RegionUnknown,
}

// RegionSet is a fixed enumeration of administrative regions with
// case-insensitive normalization.
type RegionSet struct {
	names []string
	index map[string]string
}

// NewRegionSet builds a RegionSet from names, appending the unknown bucket if
// absent.
func NewRegionSet(names []string) RegionSet {
	set := RegionSet{index: make(map[string]string, len(names)+1)}
	for _, name := range names {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			continue
		}
		key := strings.ToLower(trimmed)
		if _, ok := set.index[key]; ok {
			continue
		}
		set.index[key] = trimmed
		set.names = append(set.names, trimmed)
	}
	if _, ok := set.index[RegionUnknown]; !ok {
		set.index[RegionUnknown] = RegionUnknown
		set.names = append(set.names, RegionUnknown)
	}
	return set
}

// DefaultRegions returns the built-in region enumeration.
func DefaultRegions() RegionSet {
	return NewRegionSet(defaultRegions)
}

// RegionNames returns the built-in region names, used when declaring kind
// descriptors.
func RegionNames() []string {
	names := make([]string, len(defaultRegions))
	copy(names, defaultRegions)
	return names
}

// Names returns the region names in declaration order.
func (s RegionSet) Names() []string {
	names := make([]string, len(s.names))
	copy(names, s.names)
	return names
}

// Normalize maps a free-form value onto the enumeration, falling back to the
// unknown bucket.
func (s RegionSet) Normalize(value string) string {
	if canonical, ok := s.index[strings.ToLower(strings.TrimSpace(value))]; ok {
		return canonical
	}
	return RegionUnknown
}

// Contains reports whether value normalizes to a region other than unknown,
// or is the unknown bucket itself.
func (s RegionSet) Contains(value string) bool {
	_, ok := s.index[strings.ToLower(strings.TrimSpace(value))]
	return ok
}

type regionsFile struct {
	Regions []string `yaml:"regions"`
}

// LoadRegionSet reads a region enumeration from a yaml file of the form
// `regions: [name, ...]`.
func LoadRegionSet(path string) (RegionSet, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return RegionSet{}, err
	}

	var parsed regionsFile
	if err := yaml.Unmarshal(contents, &parsed); err != nil {
		return RegionSet{}, err
	}

	return NewRegionSet(parsed.Regions), nil
}
