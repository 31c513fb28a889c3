package question

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrQuestionNotFound = errors.New("question not found")
)

// Service reads the exam question store. Writes to unmatched fields and
// curated references belong to the ontology package.
type Service struct {
	db            *sql.DB
	strictPayload bool
	log           *zap.Logger
}

type AnalyzedFilter struct {
	LessonID  int64
	StartYear *int
	EndYear   *int
}

func NewService(db *sql.DB, strictPayload bool, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{db: db, strictPayload: strictPayload, log: log}
}

const selectQuestionSQL = `
	SELECT q.id, q.year, q.exam_type, q.question_number, q.question_text,
		q.options, q.correct_answer, q.explanation,
		q.lesson_id, l.name, q.topic_id, COALESCE(t.name,''), q.subtopic_id, COALESCE(st.name,''),
		q.unmatched_topic, q.unmatched_subtopic, q.unmatched_concepts,
		q.analysis_status, q.analysis_payload, q.pattern_type, q.pattern_confidence
	FROM exam_questions q
	JOIN lessons l ON l.id = q.lesson_id
	LEFT JOIN topics t ON t.id = q.topic_id
	LEFT JOIN subtopics st ON st.id = q.subtopic_id
`

func (s *Service) Get(ctx context.Context, id int64) (*ExamQuestion, error) {
	if id <= 0 {
		return nil, ErrInvalidInput
	}
	row := s.db.QueryRowContext(ctx, selectQuestionSQL+` WHERE q.id = $1`, id)
	q, err := s.scanExamQuestion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQuestionNotFound
		}
		return nil, err
	}
	return q, nil
}

// ListAnalyzed returns ANALYZED questions ordered by id. A zero LessonID
// spans all lessons.
func (s *Service) ListAnalyzed(ctx context.Context, f AnalyzedFilter) ([]ExamQuestion, error) {
	var (
		where = []string{"q.analysis_status = $1"}
		args  = []any{string(StatusAnalyzed)}
	)
	if f.LessonID > 0 {
		args = append(args, f.LessonID)
		where = append(where, fmt.Sprintf("q.lesson_id = $%d", len(args)))
	}
	if f.StartYear != nil {
		args = append(args, *f.StartYear)
		where = append(where, fmt.Sprintf("q.year >= $%d", len(args)))
	}
	if f.EndYear != nil {
		args = append(args, *f.EndYear)
		where = append(where, fmt.Sprintf("q.year <= $%d", len(args)))
	}

	query := selectQuestionSQL + " WHERE " + strings.Join(where, " AND ") + " ORDER BY q.id ASC"
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list analyzed questions: %w", err)
	}
	defer rows.Close()

	out := make([]ExamQuestion, 0)
	for rows.Next() {
		q, err := s.scanExamQuestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate analyzed questions: %w", err)
	}
	return out, nil
}

// CountAnalyzed counts ANALYZED questions of a lesson regardless of year.
// lessonID 0 counts every lesson.
func (s *Service) CountAnalyzed(ctx context.Context, lessonID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM exam_questions
		WHERE analysis_status = $1 AND ($2::bigint = 0 OR lesson_id = $2)
	`, string(StatusAnalyzed), lessonID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count analyzed questions: %w", err)
	}
	return n, nil
}

func (s *Service) scanExamQuestion(scanner interface{ Scan(dest ...any) error }) (*ExamQuestion, error) {
	var (
		q              ExamQuestion
		examType       sql.NullString
		questionNumber sql.NullInt64
		explanation    sql.NullString
		topicID        sql.NullInt64
		subtopicID     sql.NullInt64
		unmatchedTopic sql.NullString
		unmatchedSub   sql.NullString
		patternType    sql.NullString
		patternConf    sql.NullFloat64
		status         string
		optionsRaw     []byte
		conceptsRaw    []byte
		payloadRaw     []byte
	)
	if err := scanner.Scan(
		&q.ID, &q.Year, &examType, &questionNumber, &q.Text,
		&optionsRaw, &q.CorrectAnswer, &explanation,
		&q.LessonID, &q.LessonName, &topicID, &q.TopicName, &subtopicID, &q.SubtopicName,
		&unmatchedTopic, &unmatchedSub, &conceptsRaw,
		&status, &payloadRaw, &patternType, &patternConf,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan exam question: %w", err)
	}

	q.Status = AnalysisStatus(status)
	if examType.Valid {
		q.ExamType = &examType.String
	}
	if questionNumber.Valid {
		n := int(questionNumber.Int64)
		q.QuestionNumber = &n
	}
	if explanation.Valid {
		q.Explanation = &explanation.String
	}
	if topicID.Valid {
		q.TopicID = &topicID.Int64
	}
	if subtopicID.Valid {
		q.SubtopicID = &subtopicID.Int64
	}
	if unmatchedTopic.Valid {
		q.UnmatchedTopic = &unmatchedTopic.String
	}
	if unmatchedSub.Valid {
		q.UnmatchedSubtopic = &unmatchedSub.String
	}
	if patternType.Valid && strings.TrimSpace(patternType.String) != "" {
		q.PatternType = &patternType.String
	}
	if patternConf.Valid {
		q.PatternConfidence = &patternConf.Float64
	}

	q.Options = Options{}
	if len(optionsRaw) > 0 {
		if err := json.Unmarshal(optionsRaw, &q.Options); err != nil {
			return nil, fmt.Errorf("decode options of question %d: %w", q.ID, err)
		}
	}
	q.UnmatchedConcepts = []string{}
	if len(conceptsRaw) > 0 {
		if err := json.Unmarshal(conceptsRaw, &q.UnmatchedConcepts); err != nil {
			return nil, fmt.Errorf("decode unmatched concepts of question %d: %w", q.ID, err)
		}
	}

	payload, err := ParsePayload(payloadRaw)
	if err != nil {
		if s.strictPayload {
			return nil, fmt.Errorf("question %d: %w", q.ID, err)
		}
		s.log.Warn("analysis payload ignored",
			zap.Int64("question_id", q.ID),
			zap.Error(err),
		)
		payload = nil
	}
	q.Payload = payload
	return &q, nil
}
