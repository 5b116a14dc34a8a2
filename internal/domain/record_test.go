package domain

import "testing"

func TestSuccessorOverlaysChangesAndExtendsAncestry(t *testing.T) {
	v1 := NewRecordVersion(KindVictim, map[string]any{"name": "n", "status": "missing"}, "s1")

	v2 := v1.Successor(map[string]any{"status": "released"}, "s2")
	if v2.Fields["status"] != "released" {
		t.Fatalf("change not overlaid: %v", v2.Fields)
	}
	if v2.Fields["name"] != "n" {
		t.Fatal("untouched field must carry over")
	}
	if len(v2.PreviousVersions) != 1 || v2.PreviousVersions[0] != v1.ID {
		t.Fatalf("ancestry should be [v1], got %v", v2.PreviousVersions)
	}
	if !v2.CurrentVersion || v2.SupersededBy != nil {
		t.Fatal("successor must start as the current version")
	}

	v3 := v2.Successor(map[string]any{"status": "detained"}, "s3")
	if len(v3.PreviousVersions) != 2 || v3.PreviousVersions[0] != v1.ID || v3.PreviousVersions[1] != v2.ID {
		t.Fatalf("ancestry should grow oldest-first, got %v", v3.PreviousVersions)
	}

	// Overlay must not write through to the predecessor.
	if v1.Fields["status"] != "missing" {
		t.Fatal("successor mutated its predecessor")
	}
}

func TestSupersededFlipsPointer(t *testing.T) {
	v1 := NewRecordVersion(KindIncident, map[string]any{"title": "t", "incident_type": "other"}, "s1")
	v2 := v1.Successor(nil, "s2")

	old := v1.Superseded(v2.ID)
	if old.CurrentVersion {
		t.Fatal("superseded version must not stay current")
	}
	if old.SupersededBy == nil || *old.SupersededBy != v2.ID {
		t.Fatalf("supersededBy should point at v2, got %v", old.SupersededBy)
	}
	// Original value is untouched.
	if !v1.CurrentVersion || v1.SupersededBy != nil {
		t.Fatal("Superseded must not mutate the receiver")
	}
}

func TestDescriptorLookup(t *testing.T) {
	for _, kind := range Kinds() {
		d, ok := DescriptorFor(kind)
		if !ok {
			t.Fatalf("no descriptor for %s", kind)
		}
		if d.SearchField == "" || d.RegionField == "" {
			t.Fatalf("%s descriptor missing projection fields", kind)
		}
		if _, ok := d.Field(d.SearchField); !ok {
			t.Fatalf("%s search field %q not declared", kind, d.SearchField)
		}
		if _, ok := d.Field(d.RegionField); !ok {
			t.Fatalf("%s region field %q not declared", kind, d.RegionField)
		}
	}

	if _, ok := DescriptorFor(Kind("ghosts")); ok {
		t.Fatal("unknown kind must have no descriptor")
	}
}

func TestTrustClamp(t *testing.T) {
	s := NewSession("s", "fp", "ip")
	if s.TrustScore != TrustInitial {
		t.Fatalf("initial trust should be %d, got %d", TrustInitial, s.TrustScore)
	}

	s = s.WithTrustDelta(1000)
	if s.TrustScore != TrustMax {
		t.Fatalf("trust must clamp at %d, got %d", TrustMax, s.TrustScore)
	}
	s = s.WithTrustDelta(-1)
	if s.TrustScore != TrustMax-1 {
		t.Fatalf("delta after clamp should apply, got %d", s.TrustScore)
	}
	s = s.WithTrustDelta(-1000)
	if s.TrustScore != TrustMin {
		t.Fatalf("trust must clamp at %d, got %d", TrustMin, s.TrustScore)
	}
}

func TestRegionSetNormalize(t *testing.T) {
	set := DefaultRegions()

	if got := set.Normalize("  North "); got != "north" {
		t.Fatalf("expected north, got %q", got)
	}
	if got := set.Normalize("atlantis"); got != RegionUnknown {
		t.Fatalf("unmatched value should bucket as %q, got %q", RegionUnknown, got)
	}
	if !set.Contains("capital") || set.Contains("atlantis") {
		t.Fatal("Contains mismatch")
	}

	custom := NewRegionSet([]string{"Alpha", "alpha", "Beta", " "})
	names := custom.Names()
	if len(names) != 3 { // Alpha, Beta, unknown
		t.Fatalf("duplicates and blanks should collapse, got %v", names)
	}
}
