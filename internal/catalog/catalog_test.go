package catalog

import (
	"testing"

	"github.com/BTreeMap/ScriptPipe/internal/models"
)

func TestStagesFor_Lengths(t *testing.T) {
	cases := []struct {
		duration models.Duration
		want     int
	}{
		{models.DurationShort, 4},
		{models.DurationMedium, 4},
		{models.DurationLong, 5},
	}
	for _, tc := range cases {
		got := StagesFor(tc.duration)
		if len(got) != tc.want {
			t.Errorf("StagesFor(%s): expected %d stages, got %d", tc.duration, tc.want, len(got))
		}
		for i, def := range got {
			if def.Title == "" || def.Description == "" {
				t.Errorf("StagesFor(%s)[%d]: empty title or description", tc.duration, i)
			}
		}
	}
}

func TestStagesFor_StableAndIdempotent(t *testing.T) {
	first := StagesFor(models.DurationLong)
	second := StagesFor(models.DurationLong)
	if len(first) != len(second) {
		t.Fatalf("length changed between invocations: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("entry %d differs between invocations: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestStagesFor_ReturnsCopy(t *testing.T) {
	got := StagesFor(models.DurationShort)
	original := got[0].Title
	got[0].Title = "mutated"
	if StagesFor(models.DurationShort)[0].Title != original {
		t.Error("mutating the returned slice leaked into the catalog table")
	}
}

func TestStagesFor_UnknownDurationPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for unknown duration")
		}
	}()
	StagesFor(models.Duration("decade"))
}
