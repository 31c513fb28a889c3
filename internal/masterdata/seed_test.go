package masterdata

import (
	"errors"
	"strings"
	"testing"
)

const sampleSeed = `
lessons:
  - name: Anatomi
    profile: anatomy
    topics:
      - name: Upper Limb
        subtopics:
          - name: Brachial Plexus
      - name: Thorax
  - name: Fizyoloji
    topics:
      - name: Cardiac Cycle
prerequisites:
  - key: nerve-roots
    name: Spinal nerve roots
    concept_ids: [11, 12]
    edges:
      - lesson: anatomi
        topic: upper limb
        subtopic: brachial plexus
        strength: strong
        frequency: 4
`

func TestParseSeed(t *testing.T) {
	seed, err := ParseSeed(strings.NewReader(sampleSeed))
	if err != nil {
		t.Fatalf("parse seed: %v", err)
	}
	if len(seed.Lessons) != 2 || len(seed.Lessons[0].Topics) != 2 {
		t.Fatalf("unexpected lessons: %+v", seed.Lessons)
	}
	if got := ParsePatternProfile(seed.Lessons[0].Profile); got != ProfileAnatomy {
		t.Fatalf("expected anatomy profile, got %q", got)
	}
	edge := seed.Prerequisites[0].Edges[0]
	if s, ok := ParseEdgeStrength(edge.Strength); !ok || s != StrengthStrong {
		t.Fatalf("expected STRONG edge, got %q", edge.Strength)
	}
}

func TestParseSeedRejectsInvalidDocuments(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{name: "empty", doc: "", want: "empty seed"},
		{name: "unknown field", doc: "lessons:\n  - name: A\n    colour: red\n", want: "decode seed"},
		{name: "missing lesson name", doc: "lessons:\n  - topics: []\n", want: "name is required"},
		{name: "unknown profile", doc: "lessons:\n  - name: A\n    profile: radiology\n", want: "profile"},
		{name: "duplicate topic", doc: "lessons:\n  - name: A\n    topics:\n      - name: T\n      - name: t\n", want: "duplicate topic"},
		{name: "bad strength", doc: "lessons:\n  - name: A\n    topics:\n      - name: T\nprerequisites:\n  - key: k\n    name: K\n    edges:\n      - lesson: A\n        topic: T\n        strength: HUGE\n", want: "strength"},
		{name: "unknown edge topic", doc: "lessons:\n  - name: A\nprerequisites:\n  - key: k\n    name: K\n    edges:\n      - lesson: A\n        topic: Missing\n        strength: WEAK\n", want: "unknown topic"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseSeed(strings.NewReader(tc.doc))
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error to mention %q, got %v", tc.want, err)
			}
		})
	}
}

func TestPatternProfileOf(t *testing.T) {
	tests := []struct {
		lesson Lesson
		want   PatternProfile
	}{
		{Lesson{Name: "ANATOMI"}, ProfileAnatomy},
		{Lesson{Name: "Fizyoloji"}, ProfileGeneral},
		{Lesson{Name: "Fizyoloji", Profile: ProfileAnatomy}, ProfileAnatomy},
		{Lesson{Name: "Anatomi", Profile: ProfileGeneral}, ProfileGeneral},
	}
	for _, tc := range tests {
		if got := PatternProfileOf(tc.lesson); got != tc.want {
			t.Fatalf("PatternProfileOf(%+v) = %q, want %q", tc.lesson, got, tc.want)
		}
	}
}

func TestMaxStrengthNeverDecreases(t *testing.T) {
	if got := MaxStrength(StrengthStrong, StrengthWeak); got != StrengthStrong {
		t.Fatalf("expected STRONG, got %q", got)
	}
	if got := MaxStrength(StrengthWeak, StrengthMedium); got != StrengthMedium {
		t.Fatalf("expected MEDIUM, got %q", got)
	}
	if got := MaxStrength("", StrengthWeak); got != StrengthWeak {
		t.Fatalf("expected WEAK, got %q", got)
	}
}
