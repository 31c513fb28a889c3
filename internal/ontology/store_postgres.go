package ontology

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"examintel/internal/audit"
	internaldb "examintel/internal/db"
	"examintel/internal/masterdata"
	"examintel/internal/question"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) ListUnresolvedSignals(ctx context.Context, lessonID int64, minOccurrences int) ([]UnresolvedTopicSignal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT q.lesson_id, l.name, q.unmatched_topic, q.unmatched_subtopic,
			COUNT(*) AS frequency,
			to_json((array_agg(q.id ORDER BY q.id))[1:3]) AS example_ids
		FROM exam_questions q
		JOIN lessons l ON l.id = q.lesson_id
		WHERE (q.unmatched_topic IS NOT NULL OR q.unmatched_subtopic IS NOT NULL)
			AND ($1::bigint = 0 OR q.lesson_id = $1::bigint)
		GROUP BY q.lesson_id, l.name, q.unmatched_topic, q.unmatched_subtopic
		HAVING COUNT(*) >= $2
		ORDER BY frequency DESC, q.lesson_id ASC,
			q.unmatched_topic ASC NULLS FIRST, q.unmatched_subtopic ASC NULLS FIRST
	`, lessonID, minOccurrences)
	if err != nil {
		return nil, fmt.Errorf("query unresolved signals: %w", err)
	}
	defer rows.Close()

	out := make([]UnresolvedTopicSignal, 0)
	for rows.Next() {
		var (
			it       UnresolvedTopicSignal
			topic    sql.NullString
			subtopic sql.NullString
			idsRaw   []byte
		)
		if err := rows.Scan(&it.LessonID, &it.Lesson, &topic, &subtopic, &it.Frequency, &idsRaw); err != nil {
			return nil, fmt.Errorf("scan unresolved signal: %w", err)
		}
		if topic.Valid {
			it.UnmatchedTopic = &topic.String
		}
		if subtopic.Valid {
			it.UnmatchedSubtopic = &subtopic.String
		}
		it.ExampleQuestionIDs = []int64{}
		if len(idsRaw) > 0 {
			if err := json.Unmarshal(idsRaw, &it.ExampleQuestionIDs); err != nil {
				return nil, fmt.Errorf("decode example question ids: %w", err)
			}
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unresolved signals: %w", err)
	}
	// Postgres text ordering depends on collation; keep the Go ordering.
	sortSignals(out)
	return out, nil
}

func (s *PostgresStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	return internaldb.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		return fn(&postgresTx{tx: tx, audit: audit.NewSQLWriter(tx)})
	})
}

type postgresTx struct {
	tx    *sql.Tx
	audit audit.Writer
}

// LockSignal serializes concurrent resolutions of the same signal group
// until the transaction ends.
func (t *postgresTx) LockSignal(ctx context.Context, key SignalKey) error {
	if _, err := t.tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key.String()); err != nil {
		return fmt.Errorf("lock signal: %w", err)
	}
	return nil
}

func (t *postgresTx) GetLesson(ctx context.Context, id int64) (*masterdata.Lesson, error) {
	var (
		it      masterdata.Lesson
		profile string
	)
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(display_name,''), pattern_profile
		FROM lessons
		WHERE id = $1
	`, id).Scan(&it.ID, &it.Name, &it.DisplayName, &profile)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load lesson: %w", err)
	}
	it.Profile = masterdata.ParsePatternProfile(profile)
	return &it, nil
}

func (t *postgresTx) GetTopic(ctx context.Context, id int64) (*masterdata.Topic, error) {
	var (
		it     masterdata.Topic
		status string
	)
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, lesson_id, name, COALESCE(display_name,''), COALESCE(description,''), status
		FROM topics
		WHERE id = $1
		FOR SHARE
	`, id).Scan(&it.ID, &it.LessonID, &it.Name, &it.DisplayName, &it.Description, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load topic: %w", err)
	}
	it.Status = masterdata.EntityStatus(status)
	return &it, nil
}

func (t *postgresTx) GetSubtopic(ctx context.Context, id int64) (*masterdata.Subtopic, error) {
	var (
		it     masterdata.Subtopic
		status string
	)
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, topic_id, name, COALESCE(display_name,''), COALESCE(description,''), status
		FROM subtopics
		WHERE id = $1
		FOR SHARE
	`, id).Scan(&it.ID, &it.TopicID, &it.Name, &it.DisplayName, &it.Description, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load subtopic: %w", err)
	}
	it.Status = masterdata.EntityStatus(status)
	return &it, nil
}

func (t *postgresTx) TopicNameExists(ctx context.Context, lessonID int64, name string) (bool, error) {
	var exists bool
	err := t.tx.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM topics WHERE lesson_id = $1 AND LOWER(name) = LOWER($2))
	`, lessonID, strings.TrimSpace(name)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check topic name: %w", err)
	}
	return exists, nil
}

func (t *postgresTx) SubtopicNameExists(ctx context.Context, topicID int64, name string) (bool, error) {
	var exists bool
	err := t.tx.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM subtopics WHERE topic_id = $1 AND LOWER(name) = LOWER($2))
	`, topicID, strings.TrimSpace(name)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check subtopic name: %w", err)
	}
	return exists, nil
}

func (t *postgresTx) InsertTopic(ctx context.Context, v masterdata.Topic) (int64, error) {
	var id int64
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO topics (lesson_id, name, display_name, description, status, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3,''), NULLIF($4,''), $5, now(), now())
		RETURNING id
	`, v.LessonID, v.Name, v.DisplayName, v.Description, string(v.Status)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert topic: %w", err)
	}
	return id, nil
}

func (t *postgresTx) InsertSubtopic(ctx context.Context, v masterdata.Subtopic) (int64, error) {
	var id int64
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO subtopics (topic_id, name, display_name, description, status, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3,''), NULLIF($4,''), $5, now(), now())
		RETURNING id
	`, v.TopicID, v.Name, v.DisplayName, v.Description, string(v.Status)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert subtopic: %w", err)
	}
	return id, nil
}

func (t *postgresTx) MatchingQuestionIDs(ctx context.Context, key SignalKey) ([]int64, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id
		FROM exam_questions
		WHERE lesson_id = $1
			AND unmatched_topic IS NOT DISTINCT FROM $2::text
			AND unmatched_subtopic IS NOT DISTINCT FROM $3::text
		ORDER BY id ASC
		FOR UPDATE
	`, key.LessonID, key.Topic, key.Subtopic)
	if err != nil {
		return nil, fmt.Errorf("query matching questions: %w", err)
	}
	defer rows.Close()

	out := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan matching question: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate matching questions: %w", err)
	}
	return out, nil
}

func (t *postgresTx) ApplyResolution(ctx context.Context, questionIDs []int64, upd QuestionUpdate) (int64, error) {
	args := []any{questionIDs}
	sets := []string{"updated_at = now()"}
	topicNull, subtopicNull := "unmatched_topic IS NULL", "unmatched_subtopic IS NULL"

	if upd.TopicID != nil {
		args = append(args, *upd.TopicID)
		sets = append(sets, fmt.Sprintf("topic_id = $%d", len(args)))
	} else if upd.InheritTopicID != nil {
		args = append(args, *upd.InheritTopicID)
		sets = append(sets, fmt.Sprintf("topic_id = COALESCE(topic_id, $%d)", len(args)))
	}
	if upd.ClearTopic {
		sets = append(sets, "unmatched_topic = NULL")
		topicNull = "TRUE"
	}
	if upd.SubtopicID != nil {
		args = append(args, *upd.SubtopicID)
		sets = append(sets, fmt.Sprintf("subtopic_id = $%d", len(args)))
	}
	if upd.ClearSubtopic {
		sets = append(sets, "unmatched_subtopic = NULL")
		subtopicNull = "TRUE"
	}
	sets = append(sets, fmt.Sprintf(
		"analysis_status = CASE WHEN analysis_status = '%s' AND %s AND %s THEN '%s' ELSE analysis_status END",
		question.StatusNeedsReview, topicNull, subtopicNull, question.StatusAnalyzed,
	))

	res, err := t.tx.ExecContext(ctx,
		"UPDATE exam_questions SET "+strings.Join(sets, ", ")+" WHERE id = ANY($1::bigint[])",
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("update questions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func (t *postgresTx) WriteAudit(ctx context.Context, e audit.Entry) error {
	return t.audit.Write(ctx, e)
}
