package gosampler

import (
	"errors"
	"testing"
)

func TestFindBestKeySample(t *testing.T) {
	bank := NewInstrumentBank(4, 16)
	index, _ := bank.Create("piano")
	bank.AddKeySample(index, constantSample("c2.wav", 36, 10, 0), 36, 24, 42)
	bank.AddKeySample(index, constantSample("c4.wav", 60, 10, 0), 60, 55, 66)

	tests := []struct {
		note     uint8
		expected string
	}{
		{24, "c2.wav"},
		{42, "c2.wav"},
		{55, "c4.wav"},
		{66, "c4.wav"},
		// Uncovered notes fall back to the closest root
		{50, "c4.wav"},
		{47, "c2.wav"},
		{0, "c2.wav"},
		{127, "c4.wav"},
	}

	inst := bank.Current()
	for _, test := range tests {
		ks := inst.FindBestKeySample(test.note)
		if ks == nil {
			t.Errorf("Note %d: expected %s, got nil", test.note, test.expected)
			continue
		}
		if ks.Sample.Name != test.expected {
			t.Errorf("Note %d: expected %s, got %s", test.note, test.expected, ks.Sample.Name)
		}
	}
}

func TestFindBestKeySampleTieGoesToEarlier(t *testing.T) {
	inst := newInstrument("tie", 4)
	inst.KeySamples = append(inst.KeySamples,
		KeySample{Sample: constantSample("low.wav", 40, 1, 0), RootNote: 40, MinNote: 40, MaxNote: 40, Loaded: true},
		KeySample{Sample: constantSample("high.wav", 50, 1, 0), RootNote: 50, MinNote: 50, MaxNote: 50, Loaded: true},
	)
	if ks := inst.FindBestKeySample(45); ks.Sample.Name != "low.wav" {
		t.Errorf("Expected earlier key sample on a tie, got %s", ks.Sample.Name)
	}
}

func TestFindBestKeySampleFirstMatchWins(t *testing.T) {
	bank := NewInstrumentBank(1, 4)
	index, _ := bank.Create("overlap")
	bank.AddKeySample(index, constantSample("wide.wav", 60, 1, 0), 60, 40, 80)
	bank.AddKeySample(index, constantSample("narrow.wav", 64, 1, 0), 64, 62, 66)

	if ks := bank.Resolve(64); ks.Sample.Name != "wide.wav" {
		t.Errorf("Expected first covering key sample, got %s", ks.Sample.Name)
	}

	overlaps := bank.Current().ValidateRanges()
	if len(overlaps) != 1 {
		t.Fatalf("Expected 1 overlap, got %d", len(overlaps))
	}
	o := overlaps[0]
	if o.First != 0 || o.Second != 1 || o.Low != 62 || o.High != 66 {
		t.Errorf("Expected overlap 0/1 on 62-66, got %+v", o)
	}
	if o.String() != "key samples 0 and 1 overlap on notes 62-66" {
		t.Errorf("Unexpected overlap description: %s", o)
	}
}

func TestFindBestKeySampleSkipsUnloaded(t *testing.T) {
	inst := newInstrument("partial", 4)
	inst.KeySamples = append(inst.KeySamples,
		KeySample{RootNote: 60, MinNote: 0, MaxNote: 127, Loaded: false},
	)
	if ks := inst.FindBestKeySample(60); ks != nil {
		t.Errorf("Expected nil with nothing loaded, got %+v", ks)
	}

	var missing *Instrument
	if ks := missing.FindBestKeySample(60); ks != nil {
		t.Errorf("Expected nil for nil instrument, got %+v", ks)
	}
}

func TestValidateRangesPresets(t *testing.T) {
	for _, name := range PresetNames() {
		def, err := Preset(name)
		if err != nil {
			t.Fatalf("Failed to read preset %s: %v", name, err)
		}
		bank := NewInstrumentBank(1, 16)
		index, _ := bank.Create(def.Name)
		for _, z := range def.Zones {
			if err := bank.AddKeySample(index, constantSample(z.Sample, z.RootNote, 1, 0), z.RootNote, z.MinNote, z.MaxNote); err != nil {
				t.Fatalf("%s: failed to add %s: %v", name, z.Sample, err)
			}
		}
		if overlaps := bank.Current().ValidateRanges(); len(overlaps) != 0 {
			t.Errorf("%s: expected no overlaps, got %v", name, overlaps)
		}
	}
}

func TestInstrumentBank(t *testing.T) {
	bank := NewInstrumentBank(2, 2)

	if bank.Current() != nil || bank.CurrentIndex() != -1 {
		t.Error("Expected no current instrument in an empty bank")
	}
	if ks := bank.Resolve(60); ks != nil {
		t.Error("Expected nil resolve from an empty bank")
	}

	first, err := bank.Create("piano")
	if err != nil || first != 0 {
		t.Fatalf("Expected index 0, got %d (%v)", first, err)
	}
	if bank.CurrentIndex() != 0 {
		t.Errorf("Expected first instrument to become current, got %d", bank.CurrentIndex())
	}

	second, err := bank.Create("drums")
	if err != nil || second != 1 {
		t.Fatalf("Expected index 1, got %d (%v)", second, err)
	}
	if bank.CurrentIndex() != 0 {
		t.Errorf("Expected current to stay 0, got %d", bank.CurrentIndex())
	}

	if _, err := bank.Create("strings"); !errors.Is(err, ErrTooManyInstruments) {
		t.Errorf("Expected ErrTooManyInstruments, got %v", err)
	}
	if bank.Len() != 2 {
		t.Errorf("Expected 2 instruments, got %d", bank.Len())
	}

	if !bank.Select(1) {
		t.Error("Expected select 1 to succeed")
	}
	if bank.Current().Name != "drums" {
		t.Errorf("Expected drums current, got %s", bank.Current().Name)
	}

	// Invalid indexes are ignored
	for _, index := range []int{-1, 2, 99} {
		if bank.Select(index) {
			t.Errorf("Expected select %d to fail", index)
		}
	}
	if bank.CurrentIndex() != 1 {
		t.Errorf("Expected current to stay 1, got %d", bank.CurrentIndex())
	}

	if bank.Find("piano") != 0 || bank.Find("drums") != 1 || bank.Find("organ") != -1 {
		t.Error("Unexpected Find results")
	}
	if bank.Instrument(5) != nil {
		t.Error("Expected nil for out of range instrument")
	}
}

func TestAddKeySampleErrors(t *testing.T) {
	bank := NewInstrumentBank(1, 2)
	index, _ := bank.Create("small")
	s := constantSample("s.wav", 60, 1, 0)

	if err := bank.AddKeySample(index, s, 60, 70, 50); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("Expected ErrInvalidRange for inverted range, got %v", err)
	}
	if err := bank.AddKeySample(index, s, 60, 0, 128); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("Expected ErrInvalidRange for note 128, got %v", err)
	}
	if err := bank.AddKeySample(3, s, 60, 0, 127); !errors.Is(err, ErrInvalidInstrument) {
		t.Errorf("Expected ErrInvalidInstrument, got %v", err)
	}
	if err := bank.AddKeySample(index, nil, 60, 0, 127); err == nil {
		t.Error("Expected error for nil sample")
	}

	if bank.Instrument(index).Loaded {
		t.Error("Expected instrument not loaded before any key sample")
	}
	for i := 0; i < 2; i++ {
		if err := bank.AddKeySample(index, s, 60, 0, 127); err != nil {
			t.Fatalf("Failed to add key sample %d: %v", i, err)
		}
	}
	if !bank.Instrument(index).Loaded {
		t.Error("Expected instrument loaded after adding key samples")
	}
	if err := bank.AddKeySample(index, s, 60, 0, 127); !errors.Is(err, ErrInstrumentFull) {
		t.Errorf("Expected ErrInstrumentFull, got %v", err)
	}
	if n := len(bank.Instrument(index).KeySamples); n != 2 {
		t.Errorf("Expected 2 key samples, got %d", n)
	}
}
