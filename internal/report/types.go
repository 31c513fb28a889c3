package report

import (
	"time"

	"examintel/internal/masterdata"
)

type Filter struct {
	LessonName string
	StartYear  *int
	EndYear    *int
}

type ExamIntelligenceReport struct {
	Metadata               Metadata                `json:"metadata"`
	PatternFrequency       []PatternFrequency      `json:"patternFrequency"`
	TopicPatternMatrix     []TopicPatternRow       `json:"topicPatternMatrix"`
	PrerequisiteImpact     []PrerequisiteImpact    `json:"prerequisiteImpact"`
	YearlyTrends           []YearlyTrend           `json:"yearlyTrends"`
	TrapHotspots           []TrapHotspot           `json:"trapHotspots"`
	ContentRecommendations []ContentRecommendation `json:"contentRecommendations"`
}

type Metadata struct {
	GeneratedAt            time.Time `json:"generatedAt"`
	TotalQuestionsAnalyzed int       `json:"totalQuestionsAnalyzed"`
	YearRange              YearRange `json:"yearRange"`
	Lessons                []string  `json:"lessons"`
}

type YearRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

type PatternFrequency struct {
	Pattern    string  `json:"pattern"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
	AvgYear    int     `json:"avgYear"`
	Trend      Trend   `json:"trend"`
}

type TopicPatternRow struct {
	TopicID       int64              `json:"topicId"`
	Topic         string             `json:"topic"`
	QuestionCount int                `json:"questionCount"`
	Patterns      []TopicPatternCell `json:"patterns"`
}

type TopicPatternCell struct {
	Pattern        string   `json:"pattern"`
	Frequency      int      `json:"frequency"`
	FrequencyRatio float64  `json:"frequencyRatio"`
	MeanConfidence *float64 `json:"meanConfidence,omitempty"`
	Reliability    float64  `json:"reliability"`
}

type PrerequisiteImpact struct {
	PrerequisiteID int64                   `json:"prerequisiteId"`
	Name           string                  `json:"name"`
	Frequency      int                     `json:"frequency"`
	Strength       masterdata.EdgeStrength `json:"strength"`
	ExamImportance int                     `json:"examImportance"`
	TopicCount     int                     `json:"topicCount"`
}

type YearlyTrend struct {
	Year           int            `json:"year"`
	TotalQuestions int            `json:"totalQuestions"`
	TopTopics      []TopicShare   `json:"topTopics"`
	TopPatterns    []PatternCount `json:"topPatterns"`
	NewTopics      []string       `json:"newTopics"`
}

type TopicShare struct {
	Topic      string  `json:"topic"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

type PatternCount struct {
	PatternType string `json:"patternType"`
	Count       int    `json:"count"`
}

type RiskLevel string

const (
	RiskHigh   RiskLevel = "HIGH"
	RiskMedium RiskLevel = "MEDIUM"
	RiskLow    RiskLevel = "LOW"
)

type TrapHotspot struct {
	TopicID        int64           `json:"topicId"`
	Topic          string          `json:"topic"`
	TrapType       string          `json:"trapType"`
	Frequency      int             `json:"frequency"`
	RiskLevel      RiskLevel       `json:"riskLevel"`
	ConfusionPairs []ConfusionPair `json:"confusionPairs"`
}

type ConfusionPair struct {
	Concept1       string `json:"concept1"`
	Concept2       string `json:"concept2"`
	Differentiator string `json:"differentiator"`
}

type RecommendationType string

const (
	RecommendFlashcard    RecommendationType = "FLASHCARD"
	RecommendQuestion     RecommendationType = "QUESTION"
	RecommendPrerequisite RecommendationType = "PREREQUISITE"
)

type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
)

func (p Priority) rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	default:
		return 2
	}
}

type ContentRecommendation struct {
	TopicID         int64              `json:"topicId"`
	Topic           string             `json:"topic"`
	Type            RecommendationType `json:"type"`
	Priority        Priority           `json:"priority"`
	ExamFrequency   int                `json:"examFrequency"`
	CurrentCoverage int                `json:"currentCoverage"`
	TargetCoverage  int                `json:"targetCoverage"`
	Gap             int                `json:"gap"`
	Reason          string             `json:"reason"`
}

// EdgeObservation is a prerequisite edge resolved to its owning topic.
type EdgeObservation struct {
	PrerequisiteID   int64
	PrerequisiteName string
	TopicID          int64
	Strength         masterdata.EdgeStrength
	Frequency        int
}

// Coverage counts approved study content for one topic.
type Coverage struct {
	Flashcards int
	Questions  int
}

func emptyReport(now time.Time) *ExamIntelligenceReport {
	return &ExamIntelligenceReport{
		Metadata:               Metadata{GeneratedAt: now, Lessons: []string{}},
		PatternFrequency:       []PatternFrequency{},
		TopicPatternMatrix:     []TopicPatternRow{},
		PrerequisiteImpact:     []PrerequisiteImpact{},
		YearlyTrends:           []YearlyTrend{},
		TrapHotspots:           []TrapHotspot{},
		ContentRecommendations: []ContentRecommendation{},
	}
}
