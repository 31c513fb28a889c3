package report

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"examintel/internal/masterdata"
	"examintel/internal/question"
)

// Source supplies the read model of a report.
type Source interface {
	// LessonByName returns nil when no lesson matches.
	LessonByName(ctx context.Context, name string) (*masterdata.Lesson, error)
	Lessons(ctx context.Context) ([]masterdata.Lesson, error)
	AnalyzedQuestions(ctx context.Context, f question.AnalyzedFilter) ([]question.ExamQuestion, error)
	// AnalyzedCount ignores years. lessonID 0 spans all lessons.
	AnalyzedCount(ctx context.Context, lessonID int64) (int, error)
	// PrerequisiteEdges returns edges resolved to a topic. lessonID 0 spans all lessons.
	PrerequisiteEdges(ctx context.Context, lessonID int64) ([]EdgeObservation, error)
}

type CoverageCounter interface {
	ApprovedCoverage(ctx context.Context, topicIDs []int64) (map[int64]Coverage, error)
}

type PostgresSource struct {
	db        *sql.DB
	lessons   *masterdata.Service
	questions *question.Service
}

func NewPostgresSource(db *sql.DB, lessons *masterdata.Service, questions *question.Service) *PostgresSource {
	return &PostgresSource{db: db, lessons: lessons, questions: questions}
}

func (s *PostgresSource) LessonByName(ctx context.Context, name string) (*masterdata.Lesson, error) {
	l, err := s.lessons.LessonByName(ctx, name)
	if err != nil {
		if errors.Is(err, masterdata.ErrLessonNotFound) || errors.Is(err, masterdata.ErrInvalidInput) {
			return nil, nil
		}
		return nil, err
	}
	return l, nil
}

func (s *PostgresSource) Lessons(ctx context.Context) ([]masterdata.Lesson, error) {
	return s.lessons.ListLessons(ctx)
}

func (s *PostgresSource) AnalyzedQuestions(ctx context.Context, f question.AnalyzedFilter) ([]question.ExamQuestion, error) {
	return s.questions.ListAnalyzed(ctx, f)
}

func (s *PostgresSource) AnalyzedCount(ctx context.Context, lessonID int64) (int, error) {
	return s.questions.CountAnalyzed(ctx, lessonID)
}

func (s *PostgresSource) PrerequisiteEdges(ctx context.Context, lessonID int64) ([]EdgeObservation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.name, COALESCE(e.topic_id, st.topic_id) AS topic_id, e.strength, e.frequency
		FROM prerequisite_topic_edges e
		JOIN prerequisites p ON p.id = e.prerequisite_id
		LEFT JOIN subtopics st ON st.id = e.subtopic_id
		JOIN topics t ON t.id = COALESCE(e.topic_id, st.topic_id)
		WHERE ($1::bigint = 0 OR t.lesson_id = $1)
		ORDER BY p.id ASC, e.id ASC
	`, lessonID)
	if err != nil {
		return nil, fmt.Errorf("query prerequisite edges: %w", err)
	}
	defer rows.Close()

	out := make([]EdgeObservation, 0)
	for rows.Next() {
		var (
			e        EdgeObservation
			strength string
		)
		if err := rows.Scan(&e.PrerequisiteID, &e.PrerequisiteName, &e.TopicID, &strength, &e.Frequency); err != nil {
			return nil, fmt.Errorf("scan prerequisite edge: %w", err)
		}
		e.Strength, _ = masterdata.ParseEdgeStrength(strength)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate prerequisite edges: %w", err)
	}
	return out, nil
}

// ApprovedCoverage counts APPROVED flashcards and question cards per topic.
// Topics without content are absent from the result.
func (s *PostgresSource) ApprovedCoverage(ctx context.Context, topicIDs []int64) (map[int64]Coverage, error) {
	out := make(map[int64]Coverage, len(topicIDs))
	if len(topicIDs) == 0 {
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT topic_id, SUM(flashcards)::int, SUM(questions)::int
		FROM (
			SELECT topic_id, 1 AS flashcards, 0 AS questions
			FROM flashcards
			WHERE approval_status = 'APPROVED' AND topic_id = ANY($1::bigint[])
			UNION ALL
			SELECT topic_id, 0, 1
			FROM question_cards
			WHERE approval_status = 'APPROVED' AND topic_id = ANY($1::bigint[])
		) c
		GROUP BY topic_id
	`, topicIDs)
	if err != nil {
		return nil, fmt.Errorf("query coverage: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id  int64
			cov Coverage
		)
		if err := rows.Scan(&id, &cov.Flashcards, &cov.Questions); err != nil {
			return nil, fmt.Errorf("scan coverage: %w", err)
		}
		out[id] = cov
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate coverage: %w", err)
	}
	return out, nil
}
