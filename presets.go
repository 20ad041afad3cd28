package gosampler

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"
)

//go:embed presets/*.sfz
var presetFS embed.FS

// PresetNames lists the built-in instrument definitions
func PresetNames() []string {
	entries, err := presetFS.ReadDir("presets")
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".sfz"))
	}
	sort.Strings(names)
	return names
}

// Preset returns a built-in instrument definition such as "piano" or "drums"
func Preset(name string) (*InstrumentDef, error) {
	data, err := presetFS.ReadFile(path.Join("presets", strings.ToLower(name)+".sfz"))
	if err != nil {
		return nil, fmt.Errorf("unknown preset %q (available: %s)", name, strings.Join(PresetNames(), ", "))
	}
	sfz, err := ParseSfz(bytes.NewReader(data), name)
	if err != nil {
		return nil, fmt.Errorf("failed to parse preset %s: %w", name, err)
	}
	return sfz.Definition(name), nil
}

// LoadDefinitionFile reads an instrument definition from the media
func LoadDefinitionFile(ctx context.Context, media *Media, name string) (*InstrumentDef, error) {
	data, err := media.ReadFile(ctx, name)
	if err != nil {
		return nil, err
	}
	sfz, err := ParseSfz(bytes.NewReader(data), name)
	if err != nil {
		return nil, err
	}

	// Sample paths are relative to the definition file
	def := sfz.Definition(strings.TrimSuffix(path.Base(name), path.Ext(name)))
	if dir := path.Dir(name); dir != "." {
		for i := range def.Zones {
			def.Zones[i].Sample = path.Join(dir, def.Zones[i].Sample)
		}
	}
	return def, nil
}

// LoadInstrument creates an instrument in bank and loads each zone's sample.
// A zone whose sample fails to load is logged and skipped; the instrument
// is kept as long as the bank accepted it.
func LoadInstrument(ctx context.Context, def *InstrumentDef, media *Media, store *SampleStore, bank *InstrumentBank) (int, error) {
	if err := media.WakeUp(ctx); err != nil {
		return -1, err
	}

	index, err := bank.Create(def.Name)
	if err != nil {
		return -1, err
	}

	loaded := 0
	for _, zone := range def.Zones {
		sample, err := store.Load(ctx, media, zone.Sample, zone.RootNote)
		if err != nil {
			instrumentDebug("%s: skipping %s: %v", def.Name, zone.Sample, err)
			continue
		}
		if err := bank.AddKeySample(index, sample, zone.RootNote, zone.MinNote, zone.MaxNote); err != nil {
			instrumentDebug("%s: skipping %s: %v", def.Name, zone.Sample, err)
			continue
		}
		loaded++
	}

	inst := bank.Instrument(index)
	for _, overlap := range inst.ValidateRanges() {
		instrumentDebug("%s: %s", def.Name, overlap)
	}
	instrumentDebug("Loaded instrument %d %q: %d/%d zones", index, def.Name, loaded, len(def.Zones))
	return index, nil
}
