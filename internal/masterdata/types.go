package masterdata

import "strings"

type EntityStatus string

const (
	StatusActive   EntityStatus = "ACTIVE"
	StatusMerged   EntityStatus = "MERGED"
	StatusArchived EntityStatus = "ARCHIVED"
)

// Assignable reports whether new mappings may target an entity in this status.
func (s EntityStatus) Assignable() bool {
	return s == StatusActive
}

// PatternProfile selects how legacy analysis payloads of a lesson are read.
type PatternProfile string

const (
	ProfileGeneral PatternProfile = "general"
	ProfileAnatomy PatternProfile = "anatomy"
)

const anatomyLessonName = "anatomi"

// ParsePatternProfile normalizes a stored profile value. Unknown values map
// to the empty profile so the caller can fall back to name derivation.
func ParsePatternProfile(v string) PatternProfile {
	switch PatternProfile(strings.ToLower(strings.TrimSpace(v))) {
	case ProfileAnatomy:
		return ProfileAnatomy
	case ProfileGeneral:
		return ProfileGeneral
	default:
		return ""
	}
}

type Lesson struct {
	ID          int64          `json:"id"`
	Name        string         `json:"name"`
	DisplayName string         `json:"display_name,omitempty"`
	Profile     PatternProfile `json:"pattern_profile"`
}

// PatternProfileOf returns the lesson's profile. Lessons seeded before the
// profile column existed are classified once here from their name.
func PatternProfileOf(l Lesson) PatternProfile {
	if l.Profile != "" {
		return l.Profile
	}
	if strings.EqualFold(strings.TrimSpace(l.Name), anatomyLessonName) {
		return ProfileAnatomy
	}
	return ProfileGeneral
}

type Topic struct {
	ID          int64        `json:"id"`
	LessonID    int64        `json:"lesson_id"`
	Name        string       `json:"name"`
	DisplayName string       `json:"display_name,omitempty"`
	Description string       `json:"description,omitempty"`
	Status      EntityStatus `json:"status"`
}

type Subtopic struct {
	ID          int64        `json:"id"`
	TopicID     int64        `json:"topic_id"`
	Name        string       `json:"name"`
	DisplayName string       `json:"display_name,omitempty"`
	Description string       `json:"description,omitempty"`
	Status      EntityStatus `json:"status"`
}

type Prerequisite struct {
	ID           int64   `json:"id"`
	CanonicalKey string  `json:"canonical_key"`
	Name         string  `json:"name"`
	ConceptIDs   []int64 `json:"concept_ids"`
}

type EdgeStrength string

const (
	StrengthWeak   EdgeStrength = "WEAK"
	StrengthMedium EdgeStrength = "MEDIUM"
	StrengthStrong EdgeStrength = "STRONG"
)

// Rank orders strengths WEAK < MEDIUM < STRONG. Unknown values rank lowest.
func (s EdgeStrength) Rank() int {
	switch s {
	case StrengthStrong:
		return 3
	case StrengthMedium:
		return 2
	case StrengthWeak:
		return 1
	default:
		return 0
	}
}

func ParseEdgeStrength(v string) (EdgeStrength, bool) {
	s := EdgeStrength(strings.ToUpper(strings.TrimSpace(v)))
	if s.Rank() == 0 {
		return "", false
	}
	return s, true
}

// MaxStrength merges two observations. Strength never decreases.
func MaxStrength(a, b EdgeStrength) EdgeStrength {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

type PrerequisiteTopicEdge struct {
	ID             int64        `json:"id"`
	TopicID        *int64       `json:"topic_id,omitempty"`
	SubtopicID     *int64       `json:"subtopic_id,omitempty"`
	PrerequisiteID int64        `json:"prerequisite_id"`
	Strength       EdgeStrength `json:"strength"`
	Frequency      int          `json:"frequency"`
}
