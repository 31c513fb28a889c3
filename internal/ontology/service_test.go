package ontology

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"examintel/internal/audit"
	"examintel/internal/masterdata"
	"examintel/internal/question"
)

func strPtr(s string) *string { return &s }

func int64Ptr(v int64) *int64 { return &v }

// newFixtureStore builds two lessons with a small taxonomy and a set of
// questions carrying unresolved suggestions.
func newFixtureStore() *MemoryStore {
	m := NewMemoryStore()
	m.AddLesson(masterdata.Lesson{ID: 1, Name: "Anatomi", Profile: masterdata.ProfileAnatomy})
	m.AddLesson(masterdata.Lesson{ID: 2, Name: "Fizyoloji", Profile: masterdata.ProfileGeneral})

	m.AddTopic(masterdata.Topic{ID: 10, LessonID: 1, Name: "Kafatası", Status: masterdata.StatusActive})
	m.AddTopic(masterdata.Topic{ID: 11, LessonID: 1, Name: "Old Skull", Status: masterdata.StatusMerged})
	m.AddTopic(masterdata.Topic{ID: 20, LessonID: 2, Name: "Cardiac", Status: masterdata.StatusActive})

	m.AddSubtopic(masterdata.Subtopic{ID: 100, TopicID: 10, Name: "Foramina", Status: masterdata.StatusActive})
	m.AddSubtopic(masterdata.Subtopic{ID: 101, TopicID: 10, Name: "Sutures", Status: masterdata.StatusArchived})
	m.AddSubtopic(masterdata.Subtopic{ID: 200, TopicID: 20, Name: "Valves", Status: masterdata.StatusActive})

	for id := int64(1); id <= 4; id++ {
		q := question.ExamQuestion{ID: id, LessonID: 1, Year: 2020, UnmatchedTopic: strPtr("Skull base"), Status: question.StatusNeedsReview}
		if id == 3 {
			q.SubtopicID = int64Ptr(100)
		}
		m.AddQuestion(q)
	}
	for _, id := range []int64{5, 6} {
		m.AddQuestion(question.ExamQuestion{ID: id, LessonID: 1, Year: 2021, UnmatchedTopic: strPtr("Skull base"), UnmatchedSubtopic: strPtr("Foramen magnum"), Status: question.StatusNeedsReview})
	}
	m.AddQuestion(question.ExamQuestion{ID: 7, LessonID: 2, Year: 2021, UnmatchedTopic: strPtr("Skull base"), Status: question.StatusAnalyzed})
	m.AddQuestion(question.ExamQuestion{ID: 8, LessonID: 1, Year: 2022, UnmatchedSubtopic: strPtr("Orbit"), Status: question.StatusNeedsReview})
	m.AddQuestion(question.ExamQuestion{ID: 9, LessonID: 1, Year: 2022, TopicID: int64Ptr(10), Status: question.StatusAnalyzed})
	return m
}

func TestListUnresolvedSignalsGroupsAndOrders(t *testing.T) {
	store := newFixtureStore()
	svc := NewService(store, nil)
	ctx := context.Background()

	got, err := svc.ListUnresolvedSignals(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, got, 4)

	assert.Equal(t, 4, got[0].Frequency)
	assert.Equal(t, "Anatomi", got[0].Lesson)
	assert.Equal(t, "Skull base", *got[0].UnmatchedTopic)
	assert.Nil(t, got[0].UnmatchedSubtopic)
	assert.Equal(t, []int64{1, 2, 3}, got[0].ExampleQuestionIDs)

	assert.Equal(t, 2, got[1].Frequency)
	assert.Equal(t, "Foramen magnum", *got[1].UnmatchedSubtopic)

	assert.Equal(t, int64(1), got[2].LessonID)
	assert.Nil(t, got[2].UnmatchedTopic)
	assert.Equal(t, int64(2), got[3].LessonID)

	again, err := svc.ListUnresolvedSignals(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestListUnresolvedSignalsFilters(t *testing.T) {
	svc := NewService(newFixtureStore(), nil)
	ctx := context.Background()

	got, err := svc.ListUnresolvedSignals(ctx, 0, 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = svc.ListUnresolvedSignals(ctx, 2, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Fizyoloji", got[0].Lesson)
	assert.Equal(t, []int64{7}, got[0].ExampleQuestionIDs)

	_, err = svc.ListUnresolvedSignals(ctx, -1, 1)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestResolveTopicIgnoreClearsOnlyUnmatchedTopic(t *testing.T) {
	store := newFixtureStore()
	svc := NewService(store, nil)

	res, err := svc.ResolveTopic(context.Background(), ResolveTopicRequest{
		LessonID:       1,
		UnmatchedTopic: strPtr("Skull base"),
		TopicAction:    ActionIgnore,
	}, 42)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 4, res.AffectedQuestionCount)
	require.NotNil(t, res.TopicResolution)
	assert.Nil(t, res.TopicResolution.TopicID)
	assert.Nil(t, res.SubtopicResolution)

	for id := int64(1); id <= 4; id++ {
		q, _ := store.Question(id)
		assert.Nil(t, q.UnmatchedTopic, "question %d", id)
		assert.Nil(t, q.TopicID, "question %d", id)
		assert.Equal(t, question.StatusAnalyzed, q.Status, "question %d", id)
	}
	q3, _ := store.Question(3)
	require.NotNil(t, q3.SubtopicID)
	assert.Equal(t, int64(100), *q3.SubtopicID)

	q5, _ := store.Question(5)
	assert.NotNil(t, q5.UnmatchedTopic, "other signal groups must be untouched")
	q7, _ := store.Question(7)
	assert.NotNil(t, q7.UnmatchedTopic, "other lessons must be untouched")

	entries := store.AuditEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ActionResolveTopic, entries[0].ActionType)
	assert.Equal(t, "TOPIC_IGNORE", entries[0].ActionMode)
	assert.Equal(t, int64(42), entries[0].AdminUserID)
	assert.Equal(t, []int64{1, 2, 3, 4}, entries[0].AffectedIDs)
	assert.NotEmpty(t, entries[0].Metadata["resolution_id"])
}

func TestResolveTopicCreateNewAddsProvenance(t *testing.T) {
	store := newFixtureStore()
	svc := NewService(store, nil)

	res, err := svc.ResolveTopic(context.Background(), ResolveTopicRequest{
		LessonID:       1,
		UnmatchedTopic: strPtr("Skull base"),
		TopicAction:    ActionCreateNew,
		CreateNewTopic: &NewTopic{Name: " Skull Base ", LessonID: 1},
		AdminNotes:     "split from Kafatası",
	}, 7)
	require.NoError(t, err)
	require.NotNil(t, res.TopicResolution.TopicID)
	newID := *res.TopicResolution.TopicID
	assert.Equal(t, "Skull Base", res.TopicResolution.TopicName)

	var created *masterdata.Topic
	for _, tp := range store.Topics() {
		if tp.ID == newID {
			tp := tp
			created = &tp
		}
	}
	require.NotNil(t, created)
	assert.Equal(t, `Created from AI suggestion "Skull base"`, created.Description)
	assert.Equal(t, masterdata.StatusActive, created.Status)

	for id := int64(1); id <= 4; id++ {
		q, _ := store.Question(id)
		require.NotNil(t, q.TopicID)
		assert.Equal(t, newID, *q.TopicID)
		assert.Nil(t, q.UnmatchedTopic)
	}
	assert.Equal(t, "split from Kafatası", store.AuditEntries()[0].Metadata["admin_notes"])
}

func TestResolveTopicRollsBackOnFailureAfterTopicCreation(t *testing.T) {
	store := newFixtureStore()
	store.FailOn = func(op string) error {
		if op == "apply_resolution" {
			return errors.New("connection reset")
		}
		return nil
	}
	svc := NewService(store, nil)
	topicsBefore := len(store.Topics())

	_, err := svc.ResolveTopic(context.Background(), ResolveTopicRequest{
		LessonID:       1,
		UnmatchedTopic: strPtr("Skull base"),
		TopicAction:    ActionCreateNew,
		CreateNewTopic: &NewTopic{Name: "Skull Base"},
	}, 7)
	require.Error(t, err)
	assert.False(t, IsDomainError(err))

	assert.Len(t, store.Topics(), topicsBefore)
	assert.Empty(t, store.AuditEntries())
	q1, _ := store.Question(1)
	assert.Nil(t, q1.TopicID)
	assert.Equal(t, "Skull base", *q1.UnmatchedTopic)
}

func TestResolveTopicRollsBackWhenAuditFails(t *testing.T) {
	store := newFixtureStore()
	store.FailOn = func(op string) error {
		if op == "write_audit" {
			return errors.New("disk full")
		}
		return nil
	}
	svc := NewService(store, nil)

	_, err := svc.ResolveTopic(context.Background(), ResolveTopicRequest{
		LessonID:             1,
		UnmatchedTopic:       strPtr("Skull base"),
		TopicAction:          ActionMapExisting,
		MapToExistingTopicID: int64Ptr(10),
	}, 7)
	require.Error(t, err)

	q1, _ := store.Question(1)
	assert.Nil(t, q1.TopicID)
	assert.NotNil(t, q1.UnmatchedTopic)
}

func TestResolveTopicMergedTargetHasNoSideEffects(t *testing.T) {
	store := newFixtureStore()
	svc := NewService(store, nil)
	topicsBefore := len(store.Topics())

	_, err := svc.ResolveTopic(context.Background(), ResolveTopicRequest{
		LessonID:             1,
		UnmatchedTopic:       strPtr("Skull base"),
		TopicAction:          ActionMapExisting,
		MapToExistingTopicID: int64Ptr(11),
	}, 7)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Contains(t, err.Error(), "MERGED")

	assert.Len(t, store.Topics(), topicsBefore)
	assert.Empty(t, store.AuditEntries())
	q1, _ := store.Question(1)
	assert.Nil(t, q1.TopicID)
	assert.NotNil(t, q1.UnmatchedTopic)
}

func TestResolveTopicRebindsSubtopicToResolvedTopic(t *testing.T) {
	store := newFixtureStore()
	svc := NewService(store, nil)

	res, err := svc.ResolveTopic(context.Background(), ResolveTopicRequest{
		LessonID:             1,
		UnmatchedTopic:       strPtr("Skull base"),
		UnmatchedSubtopic:    strPtr("Foramen magnum"),
		TopicAction:          ActionMapExisting,
		MapToExistingTopicID: int64Ptr(10),
		SubtopicAction:       ActionCreateNew,
		CreateNewSubtopic:    &NewSubtopic{Name: "Foramen Magnum", TopicID: 20},
	}, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, res.AffectedQuestionCount)
	require.NotNil(t, res.SubtopicResolution.SubtopicID)
	subID := *res.SubtopicResolution.SubtopicID

	var parent int64
	for _, st := range store.Subtopics() {
		if st.ID == subID {
			parent = st.TopicID
			assert.Equal(t, `Created from AI suggestion "Foramen magnum"`, st.Description)
		}
	}
	assert.Equal(t, int64(10), parent)

	for _, id := range []int64{5, 6} {
		q, _ := store.Question(id)
		assert.Equal(t, int64(10), *q.TopicID)
		assert.Equal(t, subID, *q.SubtopicID)
		assert.Nil(t, q.UnmatchedTopic)
		assert.Nil(t, q.UnmatchedSubtopic)
		assert.Equal(t, question.StatusAnalyzed, q.Status)
	}
	assert.Equal(t, "TOPIC_MAP_EXISTING+SUBTOPIC_CREATE_NEW", store.AuditEntries()[0].ActionMode)
}

func TestResolveTopicCreatesTopicAndSubtopicTogether(t *testing.T) {
	store := newFixtureStore()
	svc := NewService(store, nil)

	res, err := svc.ResolveTopic(context.Background(), ResolveTopicRequest{
		LessonID:          1,
		UnmatchedTopic:    strPtr("Skull base"),
		UnmatchedSubtopic: strPtr("Foramen magnum"),
		TopicAction:       ActionCreateNew,
		CreateNewTopic:    &NewTopic{Name: "Skull Base"},
		SubtopicAction:    ActionCreateNew,
		CreateNewSubtopic: &NewSubtopic{Name: "Foramen Magnum"},
	}, 7)
	require.NoError(t, err)

	topicID := *res.TopicResolution.TopicID
	subID := *res.SubtopicResolution.SubtopicID
	for _, st := range store.Subtopics() {
		if st.ID == subID {
			assert.Equal(t, topicID, st.TopicID)
		}
	}
}

func TestResolveSubtopicOnlyInheritsParentTopic(t *testing.T) {
	store := newFixtureStore()
	svc := NewService(store, nil)

	res, err := svc.ResolveTopic(context.Background(), ResolveTopicRequest{
		LessonID:                1,
		UnmatchedSubtopic:       strPtr("Orbit"),
		SubtopicAction:          ActionMapExisting,
		MapToExistingSubtopicID: int64Ptr(100),
	}, 7)
	require.NoError(t, err)
	assert.Nil(t, res.TopicResolution)
	assert.Equal(t, 1, res.AffectedQuestionCount)

	q8, _ := store.Question(8)
	require.NotNil(t, q8.TopicID)
	assert.Equal(t, int64(10), *q8.TopicID)
	assert.Equal(t, int64(100), *q8.SubtopicID)
	assert.Nil(t, q8.UnmatchedSubtopic)
}

func TestResolveTopicDomainErrors(t *testing.T) {
	tests := []struct {
		name string
		req  ResolveTopicRequest
		want error
	}{
		{
			name: "missing lesson",
			req:  ResolveTopicRequest{UnmatchedTopic: strPtr("Skull base"), TopicAction: ActionIgnore},
			want: ErrValidation,
		},
		{
			name: "missing signal key",
			req:  ResolveTopicRequest{LessonID: 1, TopicAction: ActionMapExisting, MapToExistingTopicID: int64Ptr(10)},
			want: ErrValidation,
		},
		{
			name: "no actions",
			req:  ResolveTopicRequest{LessonID: 1, UnmatchedTopic: strPtr("Skull base")},
			want: ErrValidation,
		},
		{
			name: "unknown action",
			req:  ResolveTopicRequest{LessonID: 1, UnmatchedTopic: strPtr("Skull base"), TopicAction: "MERGE"},
			want: ErrValidation,
		},
		{
			name: "map without id",
			req:  ResolveTopicRequest{LessonID: 1, UnmatchedTopic: strPtr("Skull base"), TopicAction: ActionMapExisting},
			want: ErrValidation,
		},
		{
			name: "create without name",
			req:  ResolveTopicRequest{LessonID: 1, UnmatchedTopic: strPtr("Skull base"), TopicAction: ActionCreateNew, CreateNewTopic: &NewTopic{}},
			want: ErrValidation,
		},
		{
			name: "ignore missing suggestion",
			req:  ResolveTopicRequest{LessonID: 1, UnmatchedSubtopic: strPtr("Orbit"), TopicAction: ActionIgnore},
			want: ErrValidation,
		},
		{
			name: "subtopic create without parent",
			req:  ResolveTopicRequest{LessonID: 1, UnmatchedSubtopic: strPtr("Orbit"), SubtopicAction: ActionCreateNew, CreateNewSubtopic: &NewSubtopic{Name: "Orbit"}},
			want: ErrValidation,
		},
		{
			name: "unknown lesson",
			req:  ResolveTopicRequest{LessonID: 99, UnmatchedTopic: strPtr("Skull base"), TopicAction: ActionIgnore},
			want: ErrNotFound,
		},
		{
			name: "unknown topic",
			req:  ResolveTopicRequest{LessonID: 1, UnmatchedTopic: strPtr("Skull base"), TopicAction: ActionMapExisting, MapToExistingTopicID: int64Ptr(999)},
			want: ErrNotFound,
		},
		{
			name: "unknown subtopic",
			req:  ResolveTopicRequest{LessonID: 1, UnmatchedSubtopic: strPtr("Orbit"), SubtopicAction: ActionMapExisting, MapToExistingSubtopicID: int64Ptr(999)},
			want: ErrNotFound,
		},
		{
			name: "topic from other lesson",
			req:  ResolveTopicRequest{LessonID: 1, UnmatchedTopic: strPtr("Skull base"), TopicAction: ActionMapExisting, MapToExistingTopicID: int64Ptr(20)},
			want: ErrConflict,
		},
		{
			name: "duplicate topic name ignores case",
			req:  ResolveTopicRequest{LessonID: 1, UnmatchedTopic: strPtr("Skull base"), TopicAction: ActionCreateNew, CreateNewTopic: &NewTopic{Name: "kafatası"}},
			want: ErrConflict,
		},
		{
			name: "create topic in other lesson",
			req:  ResolveTopicRequest{LessonID: 1, UnmatchedTopic: strPtr("Skull base"), TopicAction: ActionCreateNew, CreateNewTopic: &NewTopic{Name: "New", LessonID: 2}},
			want: ErrConflict,
		},
		{
			name: "archived subtopic",
			req:  ResolveTopicRequest{LessonID: 1, UnmatchedSubtopic: strPtr("Orbit"), SubtopicAction: ActionMapExisting, MapToExistingSubtopicID: int64Ptr(101)},
			want: ErrConflict,
		},
		{
			name: "subtopic outside resolved topic",
			req: ResolveTopicRequest{
				LessonID: 1, UnmatchedTopic: strPtr("Skull base"), UnmatchedSubtopic: strPtr("Foramen magnum"),
				TopicAction: ActionMapExisting, MapToExistingTopicID: int64Ptr(10),
				SubtopicAction: ActionMapExisting, MapToExistingSubtopicID: int64Ptr(200),
			},
			want: ErrConflict,
		},
		{
			name: "existing subtopic under topic being created",
			req: ResolveTopicRequest{
				LessonID: 1, UnmatchedTopic: strPtr("Skull base"), UnmatchedSubtopic: strPtr("Foramen magnum"),
				TopicAction: ActionCreateNew, CreateNewTopic: &NewTopic{Name: "Skull Base"},
				SubtopicAction: ActionMapExisting, MapToExistingSubtopicID: int64Ptr(100),
			},
			want: ErrConflict,
		},
		{
			name: "duplicate subtopic name",
			req: ResolveTopicRequest{
				LessonID: 1, UnmatchedSubtopic: strPtr("Orbit"),
				SubtopicAction: ActionCreateNew, CreateNewSubtopic: &NewSubtopic{Name: "FORAMINA", TopicID: 10},
			},
			want: ErrConflict,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := newFixtureStore()
			svc := NewService(store, nil)

			_, err := svc.ResolveTopic(context.Background(), tc.req, 7)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
			assert.True(t, IsDomainError(err))
			assert.NotEmpty(t, err.Error())
			assert.Empty(t, store.AuditEntries())
		})
	}
}

func TestResolveTopicRequiresAdmin(t *testing.T) {
	svc := NewService(newFixtureStore(), nil)
	_, err := svc.ResolveTopic(context.Background(), ResolveTopicRequest{
		LessonID: 1, UnmatchedTopic: strPtr("Skull base"), TopicAction: ActionIgnore,
	}, 0)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestResolveThenListDropsGroup(t *testing.T) {
	store := newFixtureStore()
	svc := NewService(store, nil)
	ctx := context.Background()

	_, err := svc.ResolveTopic(ctx, ResolveTopicRequest{
		LessonID:             1,
		UnmatchedTopic:       strPtr("Skull base"),
		TopicAction:          ActionMapExisting,
		MapToExistingTopicID: int64Ptr(10),
	}, 7)
	require.NoError(t, err)

	signals, err := svc.ListUnresolvedSignals(ctx, 0, 1)
	require.NoError(t, err)
	for _, s := range signals {
		if s.LessonID == 1 && s.UnmatchedTopic != nil && *s.UnmatchedTopic == "Skull base" && s.UnmatchedSubtopic == nil {
			t.Fatalf("resolved group resurfaced: %+v", s)
		}
	}
	assert.Len(t, signals, 3)
}

func TestResolveTopicWithNoMatchingQuestionsStillAudits(t *testing.T) {
	store := newFixtureStore()
	svc := NewService(store, nil)

	res, err := svc.ResolveTopic(context.Background(), ResolveTopicRequest{
		LessonID:       1,
		UnmatchedTopic: strPtr("Never suggested"),
		TopicAction:    ActionIgnore,
	}, 7)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 0, res.AffectedQuestionCount)
	require.Len(t, store.AuditEntries(), 1)
	assert.Equal(t, 0, store.AuditEntries()[0].ResultCount)
}

func TestSignalKeyStringDistinguishesNull(t *testing.T) {
	empty := SignalKey{LessonID: 1, Topic: strPtr("")}
	null := SignalKey{LessonID: 1}
	assert.NotEqual(t, empty.String(), null.String())
}

func TestSignalKeyStringIsValidText(t *testing.T) {
	cases := []SignalKey{
		{LessonID: 3, Topic: strPtr("Kafatası")},
		{LessonID: 3, Subtopic: strPtr("Foramen magnum")},
		{LessonID: 3},
		{LessonID: 3, Topic: strPtr("a|b"), Subtopic: strPtr("c")},
	}
	seen := make(map[string]bool)
	for _, k := range cases {
		s := k.String()
		assert.False(t, strings.ContainsRune(s, 0), "key %q contains NUL", s)
		assert.True(t, utf8.ValidString(s), "key %q is not valid UTF-8", s)
		assert.False(t, seen[s], "duplicate key %q", s)
		seen[s] = true
	}

	assert.Equal(t, "3|9:Kafatası|-1", SignalKey{LessonID: 3, Topic: strPtr("Kafatası")}.String())
	assert.NotEqual(t,
		SignalKey{LessonID: 1, Topic: strPtr("a|1:b")}.String(),
		SignalKey{LessonID: 1, Topic: strPtr("a"), Subtopic: strPtr("b")}.String(),
	)
}
