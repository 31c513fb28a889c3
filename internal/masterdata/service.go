package masterdata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"examintel/internal/audit"
	internaldb "examintel/internal/db"
)

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrLessonNotFound = errors.New("lesson not found")
)

type Service struct {
	db *sql.DB
}

type SeedReport struct {
	Lessons       int `json:"lessons"`
	Topics        int `json:"topics"`
	Subtopics     int `json:"subtopics"`
	Prerequisites int `json:"prerequisites"`
	Edges         int `json:"edges"`
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

func (s *Service) ListLessons(ctx context.Context) ([]Lesson, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(display_name,''), pattern_profile
		FROM lessons
		ORDER BY name ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list lessons: %w", err)
	}
	defer rows.Close()

	out := make([]Lesson, 0)
	for rows.Next() {
		var it Lesson
		var profile string
		if err := rows.Scan(&it.ID, &it.Name, &it.DisplayName, &profile); err != nil {
			return nil, fmt.Errorf("scan lesson: %w", err)
		}
		it.Profile = ParsePatternProfile(profile)
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lessons: %w", err)
	}
	return out, nil
}

// LessonByName matches case-insensitively.
func (s *Service) LessonByName(ctx context.Context, name string) (*Lesson, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidInput
	}

	var it Lesson
	var profile string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(display_name,''), pattern_profile
		FROM lessons
		WHERE LOWER(name) = LOWER($1)
		ORDER BY id ASC
		LIMIT 1
	`, name).Scan(&it.ID, &it.Name, &it.DisplayName, &profile)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrLessonNotFound
		}
		return nil, fmt.Errorf("load lesson: %w", err)
	}
	it.Profile = ParsePatternProfile(profile)
	return &it, nil
}

// ApplySeed upserts a taxonomy document in one transaction. Existing
// entities are matched by name within their parent scope, prerequisites by
// canonical key. Edge strength only ever increases.
func (s *Service) ApplySeed(ctx context.Context, actorID int64, seed *Seed) (*SeedReport, error) {
	if seed == nil || actorID <= 0 {
		return nil, ErrInvalidInput
	}
	if err := seed.Validate(); err != nil {
		return nil, err
	}

	report := &SeedReport{}
	err := internaldb.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		type topicKey struct{ lesson, topic string }
		topicIDs := make(map[topicKey]int64)
		subtopicIDs := make(map[topicKey]map[string]int64)

		for _, l := range seed.Lessons {
			lessonID, err := upsertLessonTx(ctx, tx, l)
			if err != nil {
				return err
			}
			report.Lessons++
			lk := strings.ToLower(strings.TrimSpace(l.Name))

			for _, t := range l.Topics {
				topicID, err := getOrCreateTopicTx(ctx, tx, lessonID, t)
				if err != nil {
					return err
				}
				report.Topics++
				tk := topicKey{lk, strings.ToLower(strings.TrimSpace(t.Name))}
				topicIDs[tk] = topicID
				subtopicIDs[tk] = make(map[string]int64)

				for _, st := range t.Subtopics {
					subID, err := getOrCreateSubtopicTx(ctx, tx, topicID, st)
					if err != nil {
						return err
					}
					report.Subtopics++
					subtopicIDs[tk][strings.ToLower(strings.TrimSpace(st.Name))] = subID
				}
			}
		}

		for _, p := range seed.Prerequisites {
			prereqID, err := upsertPrerequisiteTx(ctx, tx, p)
			if err != nil {
				return err
			}
			report.Prerequisites++

			for _, e := range p.Edges {
				tk := topicKey{strings.ToLower(strings.TrimSpace(e.Lesson)), strings.ToLower(strings.TrimSpace(e.Topic))}
				topicID := topicIDs[tk]
				var subID *int64
				if e.Subtopic != "" {
					id := subtopicIDs[tk][strings.ToLower(strings.TrimSpace(e.Subtopic))]
					subID = &id
				}
				strength, _ := ParseEdgeStrength(e.Strength)
				freq := e.Frequency
				if freq <= 0 {
					freq = 1
				}
				if err := mergeEdgeTx(ctx, tx, prereqID, topicID, subID, strength, freq); err != nil {
					return err
				}
				report.Edges++
			}
		}

		return audit.Write(ctx, tx, audit.Entry{
			AdminUserID: actorID,
			ActionType:  audit.ActionTaxonomySeed,
			ActionMode:  "UPSERT",
			Success:     true,
			ResultCount: report.Topics + report.Subtopics + report.Edges,
			Metadata: map[string]any{
				"lessons":       report.Lessons,
				"topics":        report.Topics,
				"subtopics":     report.Subtopics,
				"prerequisites": report.Prerequisites,
				"edges":         report.Edges,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

func upsertLessonTx(ctx context.Context, tx *sql.Tx, l SeedLesson) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, `
		INSERT INTO lessons (name, display_name, pattern_profile, created_at)
		VALUES ($1, NULLIF($2,''), $3, now())
		ON CONFLICT (name) DO UPDATE
		SET display_name = COALESCE(EXCLUDED.display_name, lessons.display_name),
			pattern_profile = CASE WHEN EXCLUDED.pattern_profile = '' THEN lessons.pattern_profile ELSE EXCLUDED.pattern_profile END
		RETURNING id
	`, strings.TrimSpace(l.Name), strings.TrimSpace(l.DisplayName), string(ParsePatternProfile(l.Profile))).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert lesson %q: %w", l.Name, err)
	}
	return id, nil
}

func getOrCreateTopicTx(ctx context.Context, tx *sql.Tx, lessonID int64, t SeedTopic) (int64, error) {
	name := strings.TrimSpace(t.Name)
	var id int64
	err := tx.QueryRowContext(ctx, `
		SELECT id FROM topics
		WHERE lesson_id = $1 AND LOWER(name) = LOWER($2)
		LIMIT 1
	`, lessonID, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("lookup topic: %w", err)
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO topics (lesson_id, name, display_name, description, status, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3,''), NULLIF($4,''), 'ACTIVE', now(), now())
		RETURNING id
	`, lessonID, name, strings.TrimSpace(t.DisplayName), strings.TrimSpace(t.Description)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert topic %q: %w", name, err)
	}
	return id, nil
}

func getOrCreateSubtopicTx(ctx context.Context, tx *sql.Tx, topicID int64, st SeedSubtopic) (int64, error) {
	name := strings.TrimSpace(st.Name)
	var id int64
	err := tx.QueryRowContext(ctx, `
		SELECT id FROM subtopics
		WHERE topic_id = $1 AND LOWER(name) = LOWER($2)
		LIMIT 1
	`, topicID, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("lookup subtopic: %w", err)
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO subtopics (topic_id, name, display_name, description, status, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3,''), NULLIF($4,''), 'ACTIVE', now(), now())
		RETURNING id
	`, topicID, name, strings.TrimSpace(st.DisplayName), strings.TrimSpace(st.Description)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert subtopic %q: %w", name, err)
	}
	return id, nil
}

func upsertPrerequisiteTx(ctx context.Context, tx *sql.Tx, p SeedPrerequisite) (int64, error) {
	concepts := p.ConceptIDs
	if concepts == nil {
		concepts = []int64{}
	}
	var id int64
	err := tx.QueryRowContext(ctx, `
		INSERT INTO prerequisites (canonical_key, name, concept_ids, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (canonical_key) DO UPDATE
		SET name = EXCLUDED.name,
			concept_ids = EXCLUDED.concept_ids
		RETURNING id
	`, strings.TrimSpace(p.Key), strings.TrimSpace(p.Name), concepts).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert prerequisite %q: %w", p.Key, err)
	}
	return id, nil
}

func mergeEdgeTx(ctx context.Context, tx *sql.Tx, prereqID, topicID int64, subtopicID *int64, strength EdgeStrength, frequency int) error {
	var (
		edgeID       int64
		currentRaw   string
		currentFreq  int
		subtopicArg  any
		edgeTopicArg any = topicID
	)
	if subtopicID != nil {
		subtopicArg = *subtopicID
	}

	err := tx.QueryRowContext(ctx, `
		SELECT id, strength, frequency
		FROM prerequisite_topic_edges
		WHERE prerequisite_id = $1
			AND COALESCE(topic_id, 0) = COALESCE($2::bigint, 0)
			AND COALESCE(subtopic_id, 0) = COALESCE($3::bigint, 0)
		FOR UPDATE
	`, prereqID, edgeTopicArg, subtopicArg).Scan(&edgeID, &currentRaw, &currentFreq)
	if errors.Is(err, sql.ErrNoRows) {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO prerequisite_topic_edges (topic_id, subtopic_id, prerequisite_id, strength, frequency)
			VALUES ($1, $2, $3, $4, $5)
		`, edgeTopicArg, subtopicArg, prereqID, string(strength), frequency)
		if err != nil {
			return fmt.Errorf("insert prerequisite edge: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup prerequisite edge: %w", err)
	}

	current, _ := ParseEdgeStrength(currentRaw)
	merged := MaxStrength(current, strength)
	if frequency < currentFreq {
		frequency = currentFreq
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE prerequisite_topic_edges
		SET strength = $2, frequency = $3
		WHERE id = $1
	`, edgeID, string(merged), frequency); err != nil {
		return fmt.Errorf("update prerequisite edge: %w", err)
	}
	return nil
}
