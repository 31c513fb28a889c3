package report

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"examintel/internal/masterdata"
	"examintel/internal/question"
)

type fakeSource struct {
	lessons      []masterdata.Lesson
	questions    []question.ExamQuestion
	edges        []EdgeObservation
	coverage     map[int64]Coverage
	questionsErr error

	gotFilter   question.AnalyzedFilter
	gotEdgeLess int64
	gotTopicIDs []int64
}

func (f *fakeSource) LessonByName(ctx context.Context, name string) (*masterdata.Lesson, error) {
	for _, l := range f.lessons {
		if strings.EqualFold(l.Name, name) {
			l := l
			return &l, nil
		}
	}
	return nil, nil
}

func (f *fakeSource) Lessons(ctx context.Context) ([]masterdata.Lesson, error) {
	return f.lessons, nil
}

func (f *fakeSource) AnalyzedQuestions(ctx context.Context, qf question.AnalyzedFilter) ([]question.ExamQuestion, error) {
	f.gotFilter = qf
	if f.questionsErr != nil {
		return nil, f.questionsErr
	}
	out := make([]question.ExamQuestion, 0)
	for _, q := range f.questions {
		if qf.LessonID > 0 && q.LessonID != qf.LessonID {
			continue
		}
		if qf.StartYear != nil && q.Year < *qf.StartYear {
			continue
		}
		if qf.EndYear != nil && q.Year > *qf.EndYear {
			continue
		}
		out = append(out, q)
	}
	return out, nil
}

func (f *fakeSource) AnalyzedCount(ctx context.Context, lessonID int64) (int, error) {
	n := 0
	for _, q := range f.questions {
		if lessonID == 0 || q.LessonID == lessonID {
			n++
		}
	}
	return n, nil
}

func (f *fakeSource) PrerequisiteEdges(ctx context.Context, lessonID int64) ([]EdgeObservation, error) {
	f.gotEdgeLess = lessonID
	return f.edges, nil
}

func (f *fakeSource) ApprovedCoverage(ctx context.Context, topicIDs []int64) (map[int64]Coverage, error) {
	f.gotTopicIDs = topicIDs
	return f.coverage, nil
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(src *fakeSource) *Service {
	svc := NewService(src, src, nil)
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func scenarioSource() *fakeSource {
	qs := anatomyScenario()
	qs = append(qs, question.ExamQuestion{
		ID: 50, Year: 2015, LessonID: 2, LessonName: "Fizyoloji",
		TopicID: int64Ptr(20), TopicName: "Cardiac", PatternType: strPtr("MECHANISM"),
	})
	return &fakeSource{
		lessons: []masterdata.Lesson{
			{ID: 1, Name: "Anatomi"},
			{ID: 2, Name: "Fizyoloji", Profile: masterdata.ProfileGeneral},
		},
		questions: qs,
		edges: []EdgeObservation{
			{PrerequisiteID: 1, PrerequisiteName: "Cranial nerves", TopicID: 10, Strength: masterdata.StrengthStrong, Frequency: 4},
		},
		coverage: map[int64]Coverage{10: {Flashcards: 10, Questions: 40}},
	}
}

func TestGenerateReportScenario(t *testing.T) {
	src := scenarioSource()
	svc := newTestService(src)

	rep, err := svc.GenerateReport(context.Background(), Filter{LessonName: "anatomi"})
	require.NoError(t, err)

	assert.Equal(t, int64(1), src.gotFilter.LessonID)
	assert.Equal(t, int64(1), src.gotEdgeLess)
	assert.Equal(t, []int64{10, 11}, src.gotTopicIDs)

	md := rep.Metadata
	assert.Equal(t, fixedNow, md.GeneratedAt)
	assert.Equal(t, 10, md.TotalQuestionsAnalyzed)
	assert.Equal(t, YearRange{Min: 2018, Max: 2022}, md.YearRange)
	assert.Equal(t, []string{"Anatomi"}, md.Lessons)

	require.Len(t, rep.PatternFrequency, 1)
	assert.Equal(t, 8, rep.PatternFrequency[0].Count)
	assert.Equal(t, 80.0, rep.PatternFrequency[0].Percentage)

	require.Len(t, rep.YearlyTrends, 5)
	assert.Equal(t, 3, rep.YearlyTrends[2].TotalQuestions)

	require.Len(t, rep.PrerequisiteImpact, 1)
	assert.Equal(t, 40, rep.PrerequisiteImpact[0].ExamImportance)

	var types []RecommendationType
	for _, r := range rep.ContentRecommendations {
		if r.TopicID == 10 {
			types = append(types, r.Type)
		}
	}
	assert.ElementsMatch(t, []RecommendationType{RecommendFlashcard, RecommendPrerequisite}, types)
}

func TestGenerateReportYearWindowKeepsLessonImportance(t *testing.T) {
	src := scenarioSource()
	svc := newTestService(src)

	rep, err := svc.GenerateReport(context.Background(), Filter{LessonName: "Anatomi", StartYear: intPtr(2020), EndYear: intPtr(2020)})
	require.NoError(t, err)

	assert.Equal(t, 3, rep.Metadata.TotalQuestionsAnalyzed)
	require.Len(t, rep.PrerequisiteImpact, 1)
	assert.Equal(t, 4, rep.PrerequisiteImpact[0].Frequency)
	assert.Equal(t, 40, rep.PrerequisiteImpact[0].ExamImportance)
}

func TestGenerateReportAllLessons(t *testing.T) {
	src := scenarioSource()
	svc := newTestService(src)

	rep, err := svc.GenerateReport(context.Background(), Filter{})
	require.NoError(t, err)

	assert.Equal(t, int64(0), src.gotFilter.LessonID)
	assert.Equal(t, 11, rep.Metadata.TotalQuestionsAnalyzed)
	assert.Equal(t, YearRange{Min: 2015, Max: 2022}, rep.Metadata.YearRange)
	assert.Equal(t, []string{"Anatomi", "Fizyoloji"}, rep.Metadata.Lessons)
}

func TestGenerateReportGeneralLessonSkipsPrerequisiteRecommendations(t *testing.T) {
	src := scenarioSource()
	src.edges = []EdgeObservation{{PrerequisiteID: 2, PrerequisiteName: "Ion channels", TopicID: 20, Strength: masterdata.StrengthStrong, Frequency: 1}}
	for i := 0; i < 4; i++ {
		src.questions = append(src.questions, question.ExamQuestion{
			ID: int64(60 + i), Year: 2016, LessonID: 2, LessonName: "Fizyoloji",
			TopicID: int64Ptr(20), TopicName: "Cardiac",
		})
	}
	svc := newTestService(src)

	rep, err := svc.GenerateReport(context.Background(), Filter{LessonName: "Fizyoloji"})
	require.NoError(t, err)
	assert.Equal(t, 5, rep.Metadata.TotalQuestionsAnalyzed)
	for _, r := range rep.ContentRecommendations {
		assert.NotEqual(t, RecommendPrerequisite, r.Type)
	}
}

func TestGenerateReportUnknownLessonIsEmpty(t *testing.T) {
	svc := newTestService(scenarioSource())

	rep, err := svc.GenerateReport(context.Background(), Filter{LessonName: "Histoloji"})
	require.NoError(t, err)
	assertEmptyReport(t, rep)
}

func TestGenerateReportNoQuestionsIsEmpty(t *testing.T) {
	svc := newTestService(scenarioSource())

	rep, err := svc.GenerateReport(context.Background(), Filter{StartYear: intPtr(2030)})
	require.NoError(t, err)
	assertEmptyReport(t, rep)
}

func TestGenerateReportRejectsInvertedYears(t *testing.T) {
	svc := newTestService(scenarioSource())

	_, err := svc.GenerateReport(context.Background(), Filter{StartYear: intPtr(2022), EndYear: intPtr(2018)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidFilter))
}

func TestGenerateReportWrapsSourceError(t *testing.T) {
	src := scenarioSource()
	src.questionsErr = errors.New("connection reset")
	svc := newTestService(src)

	_, err := svc.GenerateReport(context.Background(), Filter{LessonName: "Anatomi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load analyzed questions")
	assert.False(t, errors.Is(err, ErrInvalidFilter))
}

func TestExportExcelWritesFacetSheets(t *testing.T) {
	svc := newTestService(scenarioSource())

	data, err := svc.ExportExcel(context.Background(), Filter{LessonName: "Anatomi"})
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	assert.Equal(t, []string{"Summary", "Patterns", "Topic Matrix", "Prerequisites", "Yearly", "Traps", "Recommendations"}, f.GetSheetList())

	v, err := f.GetCellValue("Patterns", "A2")
	require.NoError(t, err)
	assert.Equal(t, "SPOT", v)

	v, err = f.GetCellValue("Summary", "B3")
	require.NoError(t, err)
	assert.Equal(t, "10", v)
}

func assertEmptyReport(t *testing.T, rep *ExamIntelligenceReport) {
	t.Helper()
	require.NotNil(t, rep)
	assert.Equal(t, 0, rep.Metadata.TotalQuestionsAnalyzed)
	assert.Equal(t, YearRange{}, rep.Metadata.YearRange)
	assert.NotNil(t, rep.Metadata.Lessons)
	assert.NotNil(t, rep.PatternFrequency)
	assert.NotNil(t, rep.TopicPatternMatrix)
	assert.NotNil(t, rep.PrerequisiteImpact)
	assert.NotNil(t, rep.YearlyTrends)
	assert.NotNil(t, rep.TrapHotspots)
	assert.NotNil(t, rep.ContentRecommendations)
	assert.Empty(t, rep.PatternFrequency)
}
