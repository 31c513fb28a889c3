package report

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"examintel/internal/masterdata"
	"examintel/internal/question"
)

var ErrInvalidFilter = errors.New("invalid report filter")

var tracer = otel.Tracer("examintel/internal/report")

type Service struct {
	source   Source
	coverage CoverageCounter
	log      *zap.Logger
	now      func() time.Time
}

func NewService(source Source, coverage CoverageCounter, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{source: source, coverage: coverage, log: log, now: time.Now}
}

// GenerateReport computes every facet over one snapshot of ANALYZED
// questions. An unknown lesson or an empty selection yields an empty report.
func (s *Service) GenerateReport(ctx context.Context, f Filter) (*ExamIntelligenceReport, error) {
	ctx, span := tracer.Start(ctx, "report.GenerateReport")
	defer span.End()
	started := s.now()

	if f.StartYear != nil && f.EndYear != nil && *f.StartYear > *f.EndYear {
		return nil, fmt.Errorf("%w: startYear after endYear", ErrInvalidFilter)
	}
	span.SetAttributes(attribute.String("lesson.name", f.LessonName))

	rep, err := s.generate(ctx, f)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generate report")
		s.log.Error("generate report failed", zap.String("lesson", f.LessonName), zap.Error(err))
		return nil, err
	}

	span.SetAttributes(attribute.Int("questions", rep.Metadata.TotalQuestionsAnalyzed))
	s.log.Info("report generated",
		zap.String("lesson", f.LessonName),
		zap.Int("questions", rep.Metadata.TotalQuestionsAnalyzed),
		zap.Int("patterns", len(rep.PatternFrequency)),
		zap.Duration("took", s.now().Sub(started)),
	)
	return rep, nil
}

func (s *Service) generate(ctx context.Context, f Filter) (*ExamIntelligenceReport, error) {
	qf := question.AnalyzedFilter{StartYear: f.StartYear, EndYear: f.EndYear}
	profiles := make(map[int64]masterdata.PatternProfile)

	var lesson *masterdata.Lesson
	if f.LessonName != "" {
		l, err := s.source.LessonByName(ctx, f.LessonName)
		if err != nil {
			return nil, fmt.Errorf("resolve lesson: %w", err)
		}
		if l == nil {
			return emptyReport(s.now()), nil
		}
		lesson = l
		qf.LessonID = l.ID
		profiles[l.ID] = masterdata.PatternProfileOf(*l)
	}

	var (
		questions   []question.ExamQuestion
		lessonTotal int
	)
	yearFiltered := f.StartYear != nil || f.EndYear != nil
	g, gctx := errgroup.WithContext(ctx)
	if yearFiltered {
		g.Go(func() error {
			var err error
			lessonTotal, err = s.source.AnalyzedCount(gctx, qf.LessonID)
			if err != nil {
				return fmt.Errorf("count analyzed questions: %w", err)
			}
			return nil
		})
	}
	if lesson == nil {
		g.Go(func() error {
			lessons, err := s.source.Lessons(gctx)
			if err != nil {
				return fmt.Errorf("list lessons: %w", err)
			}
			for _, l := range lessons {
				profiles[l.ID] = masterdata.PatternProfileOf(l)
			}
			return nil
		})
	}
	g.Go(func() error {
		var err error
		questions, err = s.source.AnalyzedQuestions(gctx, qf)
		if err != nil {
			return fmt.Errorf("load analyzed questions: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return emptyReport(s.now()), nil
	}

	items := make([]analyzed, 0, len(questions))
	topicSet := make(map[int64]struct{})
	for _, q := range questions {
		profile, ok := profiles[q.LessonID]
		if !ok {
			profile = masterdata.PatternProfileOf(masterdata.Lesson{ID: q.LessonID, Name: q.LessonName})
		}
		sig := NormalizeSignal(q, profile)
		it := analyzed{q: q, profile: profile, signal: sig, patterns: sig.Patterns()}
		if id, ok := it.topicID(); ok {
			topicSet[id] = struct{}{}
		}
		items = append(items, it)
	}
	topicIDs := make([]int64, 0, len(topicSet))
	for id := range topicSet {
		topicIDs = append(topicIDs, id)
	}
	sort.Slice(topicIDs, func(i, j int) bool { return topicIDs[i] < topicIDs[j] })

	var (
		edges    []EdgeObservation
		coverage map[int64]Coverage
	)
	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		edges, err = s.source.PrerequisiteEdges(gctx, qf.LessonID)
		if err != nil {
			return fmt.Errorf("load prerequisite edges: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		coverage, err = s.coverage.ApprovedCoverage(gctx, topicIDs)
		if err != nil {
			return fmt.Errorf("load coverage: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Edge frequencies span every year, so importance is measured against
	// the full analyzed count rather than the filtered window.
	if !yearFiltered || lessonTotal < len(items) {
		lessonTotal = len(items)
	}
	includePrereq := lesson == nil || profiles[lesson.ID] == masterdata.ProfileAnatomy

	return &ExamIntelligenceReport{
		Metadata:               buildMetadata(items, s.now()),
		PatternFrequency:       patternFrequency(items),
		TopicPatternMatrix:     topicPatternMatrix(items),
		PrerequisiteImpact:     prerequisiteImpact(edges, lessonTotal),
		YearlyTrends:           yearlyTrends(items),
		TrapHotspots:           trapHotspots(items),
		ContentRecommendations: contentRecommendations(topicFrequencies(items), coverage, edges, includePrereq),
	}, nil
}

func buildMetadata(items []analyzed, now time.Time) Metadata {
	md := Metadata{GeneratedAt: now, TotalQuestionsAnalyzed: len(items), Lessons: []string{}}
	seen := make(map[string]struct{})
	for i, it := range items {
		if i == 0 || it.q.Year < md.YearRange.Min {
			md.YearRange.Min = it.q.Year
		}
		if i == 0 || it.q.Year > md.YearRange.Max {
			md.YearRange.Max = it.q.Year
		}
		if _, ok := seen[it.q.LessonName]; !ok {
			seen[it.q.LessonName] = struct{}{}
			md.Lessons = append(md.Lessons, it.q.LessonName)
		}
	}
	sort.Strings(md.Lessons)
	return md
}
