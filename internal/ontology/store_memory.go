package ontology

import (
	"context"
	"sort"
	"strings"
	"sync"

	"examintel/internal/audit"
	"examintel/internal/masterdata"
	"examintel/internal/question"
)

// MemoryStore keeps the taxonomy and question rows in process. A unit of
// work operates on a copy that replaces the live state only on success.
type MemoryStore struct {
	mu    sync.Mutex
	state memoryState

	// FailOn, when set, is consulted before every write with the operation
	// name; a non-nil result aborts the unit of work.
	FailOn func(op string) error
}

type memoryState struct {
	lessons   map[int64]masterdata.Lesson
	topics    map[int64]masterdata.Topic
	subtopics map[int64]masterdata.Subtopic
	questions map[int64]question.ExamQuestion
	audits    []audit.Entry
	nextID    int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: memoryState{
		lessons:   make(map[int64]masterdata.Lesson),
		topics:    make(map[int64]masterdata.Topic),
		subtopics: make(map[int64]masterdata.Subtopic),
		questions: make(map[int64]question.ExamQuestion),
		nextID:    1000,
	}}
}

func (m *MemoryStore) AddLesson(l masterdata.Lesson) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.lessons[l.ID] = l
}

func (m *MemoryStore) AddTopic(t masterdata.Topic) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.topics[t.ID] = t
}

func (m *MemoryStore) AddSubtopic(st masterdata.Subtopic) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.subtopics[st.ID] = st
}

func (m *MemoryStore) AddQuestion(q question.ExamQuestion) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.questions[q.ID] = q
}

func (m *MemoryStore) Question(id int64) (question.ExamQuestion, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.state.questions[id]
	return q, ok
}

func (m *MemoryStore) Topics() []masterdata.Topic {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]masterdata.Topic, 0, len(m.state.topics))
	for _, t := range m.state.topics {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MemoryStore) Subtopics() []masterdata.Subtopic {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]masterdata.Subtopic, 0, len(m.state.subtopics))
	for _, st := range m.state.subtopics {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MemoryStore) AuditEntries() []audit.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]audit.Entry(nil), m.state.audits...)
}

func (m *MemoryStore) ListUnresolvedSignals(ctx context.Context, lessonID int64, minOccurrences int) ([]UnresolvedTopicSignal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]int64, 0, len(m.state.questions))
	for id := range m.state.questions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	type groupKey struct {
		lessonID              int64
		topic, subtopic       string
		hasTopic, hasSubtopic bool
	}
	groups := make(map[groupKey]*UnresolvedTopicSignal)
	order := make([]groupKey, 0)
	for _, id := range ids {
		q := m.state.questions[id]
		if q.UnmatchedTopic == nil && q.UnmatchedSubtopic == nil {
			continue
		}
		if lessonID > 0 && q.LessonID != lessonID {
			continue
		}
		k := groupKey{lessonID: q.LessonID}
		if q.UnmatchedTopic != nil {
			k.topic, k.hasTopic = *q.UnmatchedTopic, true
		}
		if q.UnmatchedSubtopic != nil {
			k.subtopic, k.hasSubtopic = *q.UnmatchedSubtopic, true
		}
		g, ok := groups[k]
		if !ok {
			g = &UnresolvedTopicSignal{
				Lesson:             m.state.lessons[q.LessonID].Name,
				LessonID:           q.LessonID,
				UnmatchedTopic:     copyString(q.UnmatchedTopic),
				UnmatchedSubtopic:  copyString(q.UnmatchedSubtopic),
				ExampleQuestionIDs: []int64{},
			}
			groups[k] = g
			order = append(order, k)
		}
		g.Frequency++
		if len(g.ExampleQuestionIDs) < 3 {
			g.ExampleQuestionIDs = append(g.ExampleQuestionIDs, q.ID)
		}
	}

	out := make([]UnresolvedTopicSignal, 0, len(order))
	for _, k := range order {
		if g := groups[k]; g.Frequency >= minOccurrences {
			out = append(out, *g)
		}
	}
	sortSignals(out)
	return out, nil
}

// sortSignals orders by frequency descending, then lesson, topic and
// subtopic ascending with NULL first.
func sortSignals(out []UnresolvedTopicSignal) {
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Frequency != b.Frequency {
			return a.Frequency > b.Frequency
		}
		if a.LessonID != b.LessonID {
			return a.LessonID < b.LessonID
		}
		if c := compareNullable(a.UnmatchedTopic, b.UnmatchedTopic); c != 0 {
			return c < 0
		}
		return compareNullable(a.UnmatchedSubtopic, b.UnmatchedSubtopic) < 0
	})
}

func compareNullable(a, b *string) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	default:
		return strings.Compare(*a, *b)
	}
}

func (m *MemoryStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.state.clone()
	if err := fn(&memoryTx{state: &work, failOn: m.FailOn}); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (s memoryState) clone() memoryState {
	out := memoryState{
		lessons:   make(map[int64]masterdata.Lesson, len(s.lessons)),
		topics:    make(map[int64]masterdata.Topic, len(s.topics)),
		subtopics: make(map[int64]masterdata.Subtopic, len(s.subtopics)),
		questions: make(map[int64]question.ExamQuestion, len(s.questions)),
		audits:    append([]audit.Entry(nil), s.audits...),
		nextID:    s.nextID,
	}
	for k, v := range s.lessons {
		out.lessons[k] = v
	}
	for k, v := range s.topics {
		out.topics[k] = v
	}
	for k, v := range s.subtopics {
		out.subtopics[k] = v
	}
	for k, v := range s.questions {
		out.questions[k] = v
	}
	return out
}

type memoryTx struct {
	state  *memoryState
	failOn func(op string) error
}

func (t *memoryTx) fail(op string) error {
	if t.failOn == nil {
		return nil
	}
	return t.failOn(op)
}

func (t *memoryTx) LockSignal(ctx context.Context, key SignalKey) error {
	return nil
}

func (t *memoryTx) GetLesson(ctx context.Context, id int64) (*masterdata.Lesson, error) {
	l, ok := t.state.lessons[id]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

func (t *memoryTx) GetTopic(ctx context.Context, id int64) (*masterdata.Topic, error) {
	v, ok := t.state.topics[id]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (t *memoryTx) GetSubtopic(ctx context.Context, id int64) (*masterdata.Subtopic, error) {
	v, ok := t.state.subtopics[id]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (t *memoryTx) TopicNameExists(ctx context.Context, lessonID int64, name string) (bool, error) {
	for _, v := range t.state.topics {
		if v.LessonID == lessonID && strings.EqualFold(v.Name, name) {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) SubtopicNameExists(ctx context.Context, topicID int64, name string) (bool, error) {
	for _, v := range t.state.subtopics {
		if v.TopicID == topicID && strings.EqualFold(v.Name, name) {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) InsertTopic(ctx context.Context, v masterdata.Topic) (int64, error) {
	if err := t.fail("insert_topic"); err != nil {
		return 0, err
	}
	t.state.nextID++
	v.ID = t.state.nextID
	t.state.topics[v.ID] = v
	return v.ID, nil
}

func (t *memoryTx) InsertSubtopic(ctx context.Context, v masterdata.Subtopic) (int64, error) {
	if err := t.fail("insert_subtopic"); err != nil {
		return 0, err
	}
	t.state.nextID++
	v.ID = t.state.nextID
	t.state.subtopics[v.ID] = v
	return v.ID, nil
}

func (t *memoryTx) MatchingQuestionIDs(ctx context.Context, key SignalKey) ([]int64, error) {
	out := make([]int64, 0)
	for id, q := range t.state.questions {
		if key.matches(q.LessonID, q.UnmatchedTopic, q.UnmatchedSubtopic) {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (t *memoryTx) ApplyResolution(ctx context.Context, questionIDs []int64, upd QuestionUpdate) (int64, error) {
	if err := t.fail("apply_resolution"); err != nil {
		return 0, err
	}
	var n int64
	for _, id := range questionIDs {
		q, ok := t.state.questions[id]
		if !ok {
			continue
		}
		if upd.TopicID != nil {
			q.TopicID = copyInt64(upd.TopicID)
		}
		if upd.ClearTopic {
			q.UnmatchedTopic = nil
		}
		if upd.SubtopicID != nil {
			q.SubtopicID = copyInt64(upd.SubtopicID)
		}
		if upd.ClearSubtopic {
			q.UnmatchedSubtopic = nil
		}
		if upd.InheritTopicID != nil && q.TopicID == nil {
			q.TopicID = copyInt64(upd.InheritTopicID)
		}
		if q.Status == question.StatusNeedsReview && q.UnmatchedTopic == nil && q.UnmatchedSubtopic == nil {
			q.Status = question.StatusAnalyzed
		}
		t.state.questions[id] = q
		n++
	}
	return n, nil
}

func (t *memoryTx) WriteAudit(ctx context.Context, e audit.Entry) error {
	if err := t.fail("write_audit"); err != nil {
		return err
	}
	t.state.audits = append(t.state.audits, e)
	return nil
}

func copyString(v *string) *string {
	if v == nil {
		return nil
	}
	s := *v
	return &s
}

func copyInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}
