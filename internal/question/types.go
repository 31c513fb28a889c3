package question

import (
	"sort"
	"strings"
)

type AnalysisStatus string

const (
	StatusRaw            AnalysisStatus = "RAW"
	StatusPending        AnalysisStatus = "PENDING"
	StatusProcessing     AnalysisStatus = "PROCESSING"
	StatusAnalyzed       AnalysisStatus = "ANALYZED"
	StatusNeedsReview    AnalysisStatus = "NEEDS_REVIEW"
	StatusReviewed       AnalysisStatus = "REVIEWED"
	StatusKnowledgeReady AnalysisStatus = "KNOWLEDGE_READY"
	StatusContentReady   AnalysisStatus = "CONTENT_READY"
	StatusFailed         AnalysisStatus = "FAILED"
)

func (s AnalysisStatus) Valid() bool {
	switch s {
	case StatusRaw, StatusPending, StatusProcessing, StatusAnalyzed, StatusNeedsReview,
		StatusReviewed, StatusKnowledgeReady, StatusContentReady, StatusFailed:
		return true
	default:
		return false
	}
}

// ExamQuestion carries both curated taxonomy references and the raw AI
// suggestions that have not been reconciled yet.
type ExamQuestion struct {
	ID                int64            `json:"id"`
	Year              int              `json:"year"`
	ExamType          *string          `json:"examType,omitempty"`
	QuestionNumber    *int             `json:"questionNumber,omitempty"`
	Text              string           `json:"question"`
	Options           Options          `json:"options"`
	CorrectAnswer     string           `json:"correctAnswer"`
	Explanation       *string          `json:"explanation,omitempty"`
	LessonID          int64            `json:"lessonId"`
	LessonName        string           `json:"lesson,omitempty"`
	TopicID           *int64           `json:"topicId,omitempty"`
	TopicName         string           `json:"topic,omitempty"`
	SubtopicID        *int64           `json:"subtopicId,omitempty"`
	SubtopicName      string           `json:"subtopic,omitempty"`
	UnmatchedTopic    *string          `json:"unmatchedTopic,omitempty"`
	UnmatchedSubtopic *string          `json:"unmatchedSubtopic,omitempty"`
	UnmatchedConcepts []string         `json:"unmatchedConcepts"`
	Status            AnalysisStatus   `json:"analysisStatus"`
	Payload           *AnalysisPayload `json:"analysisPayload,omitempty"`
	PatternType       *string          `json:"patternType,omitempty"`
	PatternConfidence *float64         `json:"patternConfidence,omitempty"`
}

// Options maps answer labels (A-E) to option text.
type Options map[string]string

// Labels returns the option labels in display order.
func (o Options) Labels() []string {
	out := make([]string, 0, len(o))
	for k := range o {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Text returns the option text for a label, matching case-insensitively.
func (o Options) Text(label string) string {
	label = strings.TrimSpace(label)
	if v, ok := o[label]; ok {
		return v
	}
	for k, v := range o {
		if strings.EqualFold(k, label) {
			return v
		}
	}
	return ""
}
