package report

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// ExportExcel renders the report of f as an xlsx workbook, one sheet per facet.
func (s *Service) ExportExcel(ctx context.Context, f Filter) ([]byte, error) {
	rep, err := s.GenerateReport(ctx, f)
	if err != nil {
		return nil, err
	}
	return WriteWorkbook(rep)
}

func WriteWorkbook(rep *ExamIntelligenceReport) ([]byte, error) {
	if rep == nil {
		return nil, fmt.Errorf("write workbook: nil report")
	}
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	summary := f.GetSheetName(0)
	if err := f.SetSheetName(summary, "Summary"); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	md := rep.Metadata
	if err := writeSheet(f, "Summary", []string{"Field", "Value"}, [][]any{
		{"Generated At", md.GeneratedAt.UTC().Format(time.RFC3339)},
		{"Questions Analyzed", md.TotalQuestionsAnalyzed},
		{"First Year", md.YearRange.Min},
		{"Last Year", md.YearRange.Max},
		{"Lessons", strings.Join(md.Lessons, ", ")},
	}); err != nil {
		return nil, err
	}

	patterns := make([][]any, 0, len(rep.PatternFrequency))
	for _, p := range rep.PatternFrequency {
		patterns = append(patterns, []any{p.Pattern, p.Count, p.Percentage, p.AvgYear, string(p.Trend)})
	}
	matrix := make([][]any, 0)
	for _, row := range rep.TopicPatternMatrix {
		for _, c := range row.Patterns {
			conf := any("")
			if c.MeanConfidence != nil {
				conf = *c.MeanConfidence
			}
			matrix = append(matrix, []any{row.Topic, row.QuestionCount, c.Pattern, c.Frequency, c.FrequencyRatio, conf, c.Reliability})
		}
	}
	prereqs := make([][]any, 0, len(rep.PrerequisiteImpact))
	for _, p := range rep.PrerequisiteImpact {
		prereqs = append(prereqs, []any{p.Name, p.Frequency, string(p.Strength), p.ExamImportance, p.TopicCount})
	}
	yearly := make([][]any, 0, len(rep.YearlyTrends))
	for _, y := range rep.YearlyTrends {
		topics := make([]string, 0, len(y.TopTopics))
		for _, t := range y.TopTopics {
			topics = append(topics, fmt.Sprintf("%s (%d)", t.Topic, t.Count))
		}
		pats := make([]string, 0, len(y.TopPatterns))
		for _, p := range y.TopPatterns {
			pats = append(pats, fmt.Sprintf("%s (%d)", p.PatternType, p.Count))
		}
		yearly = append(yearly, []any{y.Year, y.TotalQuestions, strings.Join(topics, "; "), strings.Join(pats, "; "), strings.Join(y.NewTopics, "; ")})
	}
	traps := make([][]any, 0, len(rep.TrapHotspots))
	for _, t := range rep.TrapHotspots {
		pairs := make([]string, 0, len(t.ConfusionPairs))
		for _, p := range t.ConfusionPairs {
			pairs = append(pairs, p.Concept1+" / "+p.Concept2)
		}
		traps = append(traps, []any{t.Topic, t.TrapType, t.Frequency, string(t.RiskLevel), strings.Join(pairs, "; ")})
	}
	recs := make([][]any, 0, len(rep.ContentRecommendations))
	for _, r := range rep.ContentRecommendations {
		recs = append(recs, []any{r.Topic, string(r.Type), string(r.Priority), r.ExamFrequency, r.CurrentCoverage, r.TargetCoverage, r.Gap, r.Reason})
	}

	sheets := []struct {
		name    string
		headers []string
		rows    [][]any
	}{
		{"Patterns", []string{"Pattern", "Count", "Percentage", "Avg Year", "Trend"}, patterns},
		{"Topic Matrix", []string{"Topic", "Questions", "Pattern", "Frequency", "Ratio", "Mean Confidence", "Reliability"}, matrix},
		{"Prerequisites", []string{"Prerequisite", "Frequency", "Strength", "Exam Importance", "Topics"}, prereqs},
		{"Yearly", []string{"Year", "Questions", "Top Topics", "Top Patterns", "New Topics"}, yearly},
		{"Traps", []string{"Topic", "Trap Type", "Frequency", "Risk", "Confusion Pairs"}, traps},
		{"Recommendations", []string{"Topic", "Type", "Priority", "Exam Frequency", "Current", "Target", "Gap", "Reason"}, recs},
	}
	for _, sh := range sheets {
		if _, err := f.NewSheet(sh.name); err != nil {
			return nil, fmt.Errorf("create sheet %s: %w", sh.name, err)
		}
		if err := writeSheet(f, sh.name, sh.headers, sh.rows); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, sheet string, headers []string, rows [][]any) error {
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return fmt.Errorf("write %s header: %w", sheet, err)
		}
	}
	for r, values := range rows {
		for c, v := range values {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("write %s row %d: %w", sheet, r+1, err)
			}
		}
	}
	return nil
}
