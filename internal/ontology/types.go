package ontology

import (
	"strconv"
	"strings"
)

type Action string

const (
	ActionMapExisting Action = "MAP_EXISTING"
	ActionCreateNew   Action = "CREATE_NEW"
	ActionIgnore      Action = "IGNORE"
)

func (a Action) valid() bool {
	switch a {
	case ActionMapExisting, ActionCreateNew, ActionIgnore:
		return true
	default:
		return false
	}
}

// UnresolvedTopicSignal is one group of questions sharing the same
// unreconciled AI suggestion within a lesson.
type UnresolvedTopicSignal struct {
	Lesson             string  `json:"lesson"`
	LessonID           int64   `json:"lessonId"`
	UnmatchedTopic     *string `json:"unmatchedTopic"`
	UnmatchedSubtopic  *string `json:"unmatchedSubtopic"`
	Frequency          int     `json:"frequency"`
	ExampleQuestionIDs []int64 `json:"exampleQuestionIds"`
}

type NewTopic struct {
	Name        string `json:"name"`
	LessonID    int64  `json:"lessonId"`
	DisplayName string `json:"displayName,omitempty"`
	Description string `json:"description,omitempty"`
}

type NewSubtopic struct {
	Name        string `json:"name"`
	TopicID     int64  `json:"topicId"`
	DisplayName string `json:"displayName,omitempty"`
	Description string `json:"description,omitempty"`
}

type ResolveTopicRequest struct {
	LessonID                int64        `json:"lessonId"`
	UnmatchedTopic          *string      `json:"unmatchedTopic,omitempty"`
	UnmatchedSubtopic       *string      `json:"unmatchedSubtopic,omitempty"`
	TopicAction             Action       `json:"topicAction,omitempty"`
	MapToExistingTopicID    *int64       `json:"mapToExistingTopicId,omitempty"`
	CreateNewTopic          *NewTopic    `json:"createNewTopic,omitempty"`
	SubtopicAction          Action       `json:"subtopicAction,omitempty"`
	MapToExistingSubtopicID *int64       `json:"mapToExistingSubtopicId,omitempty"`
	CreateNewSubtopic       *NewSubtopic `json:"createNewSubtopic,omitempty"`
	AdminNotes              string       `json:"adminNotes,omitempty"`
}

type TopicResolution struct {
	Action    Action `json:"action"`
	TopicID   *int64 `json:"topicId,omitempty"`
	TopicName string `json:"topicName,omitempty"`
}

type SubtopicResolution struct {
	Action       Action `json:"action"`
	SubtopicID   *int64 `json:"subtopicId,omitempty"`
	SubtopicName string `json:"subtopicName,omitempty"`
}

type ResolveTopicResponse struct {
	Success               bool                `json:"success"`
	AffectedQuestionCount int                 `json:"affectedQuestionCount"`
	TopicResolution       *TopicResolution    `json:"topicResolution,omitempty"`
	SubtopicResolution    *SubtopicResolution `json:"subtopicResolution,omitempty"`
	Message               string              `json:"message"`
}

// SignalKey identifies a signal group exactly. A nil field matches NULL.
type SignalKey struct {
	LessonID int64
	Topic    *string
	Subtopic *string
}

// String renders a stable key used for advisory locking. Each nullable field
// is length-prefixed ("<bytes>:<value>") and NULL renders as "-1", so the key
// is valid Postgres text and NULL never collides with an empty string.
func (k SignalKey) String() string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(k.LessonID, 10))
	for _, v := range []*string{k.Topic, k.Subtopic} {
		b.WriteByte('|')
		if v == nil {
			b.WriteString("-1")
			continue
		}
		b.WriteString(strconv.Itoa(len(*v)))
		b.WriteByte(':')
		b.WriteString(*v)
	}
	return b.String()
}

func (k SignalKey) matches(lessonID int64, topic, subtopic *string) bool {
	return k.LessonID == lessonID && sameNullable(k.Topic, topic) && sameNullable(k.Subtopic, subtopic)
}

func sameNullable(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// QuestionUpdate describes the bulk rewrite applied to every question of a
// signal group.
type QuestionUpdate struct {
	TopicID        *int64
	ClearTopic     bool
	SubtopicID     *int64
	ClearSubtopic  bool
	InheritTopicID *int64
}
