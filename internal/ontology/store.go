package ontology

import (
	"context"

	"examintel/internal/audit"
	"examintel/internal/masterdata"
)

// Store is the persistence boundary of the resolution engine.
type Store interface {
	// ListUnresolvedSignals groups questions by (lesson, unmatched topic,
	// unmatched subtopic). lessonID 0 spans all lessons.
	ListUnresolvedSignals(ctx context.Context, lessonID int64, minOccurrences int) ([]UnresolvedTopicSignal, error)
	// WithinTx runs fn as one unit of work. Nothing fn writes is visible
	// unless fn returns nil.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the transactional view handed to a unit of work. Lookups return
// nil without error when the row does not exist.
type Tx interface {
	LockSignal(ctx context.Context, key SignalKey) error

	GetLesson(ctx context.Context, id int64) (*masterdata.Lesson, error)
	GetTopic(ctx context.Context, id int64) (*masterdata.Topic, error)
	GetSubtopic(ctx context.Context, id int64) (*masterdata.Subtopic, error)
	TopicNameExists(ctx context.Context, lessonID int64, name string) (bool, error)
	SubtopicNameExists(ctx context.Context, topicID int64, name string) (bool, error)

	InsertTopic(ctx context.Context, t masterdata.Topic) (int64, error)
	InsertSubtopic(ctx context.Context, st masterdata.Subtopic) (int64, error)

	// MatchingQuestionIDs returns ids of questions in the group, ascending.
	MatchingQuestionIDs(ctx context.Context, key SignalKey) ([]int64, error)
	ApplyResolution(ctx context.Context, questionIDs []int64, upd QuestionUpdate) (int64, error)

	WriteAudit(ctx context.Context, e audit.Entry) error
}
