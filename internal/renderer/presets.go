package renderer

import (
	"fmt"
	"sort"
	"strings"
)

// Preset is a manim quality flag and the directory label manim writes
// that quality's output under.
type Preset struct {
	Name  string
	Flag  string
	Label string
}

var presets = map[string]Preset{
	"low":        {Name: "low", Flag: "-ql", Label: "480p15"},
	"medium":     {Name: "medium", Flag: "-qm", Label: "720p30"},
	"high":       {Name: "high", Flag: "-qh", Label: "1080p60"},
	"production": {Name: "production", Flag: "-qp", Label: "1440p60"},
	"4k":         {Name: "4k", Flag: "-qk", Label: "2160p60"},
}

// DefaultPreset is used when a request names no quality.
const DefaultPreset = "low"

// LookupPreset resolves a preset by name (case-insensitive). An empty name
// yields DefaultPreset.
func LookupPreset(name string) (Preset, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = DefaultPreset
	}
	p, ok := presets[name]
	if !ok {
		return Preset{}, fmt.Errorf("unknown quality %q (want one of %s)", name, strings.Join(PresetNames(), ", "))
	}
	return p, nil
}

// PresetNames lists the accepted quality names.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
