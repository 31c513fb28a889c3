package report

import (
	"math"
	"sort"

	"examintel/internal/masterdata"
	"examintel/internal/question"
)

const maxPatternFrequencies = 50

// analyzed is one question with its lesson profile and pattern signal
// resolved up front.
type analyzed struct {
	q        question.ExamQuestion
	profile  masterdata.PatternProfile
	signal   PatternSignal
	patterns []string
}

func (a analyzed) topicID() (int64, bool) {
	if a.q.TopicID == nil {
		return 0, false
	}
	return *a.q.TopicID, true
}

func patternFrequency(items []analyzed) []PatternFrequency {
	type tally struct {
		count int
		years []int
	}
	tallies := make(map[string]*tally)
	order := make([]string, 0)
	for _, it := range items {
		for _, p := range it.patterns {
			t, ok := tallies[p]
			if !ok {
				t = &tally{}
				tallies[p] = t
				order = append(order, p)
			}
			t.count++
			t.years = append(t.years, it.q.Year)
		}
	}

	total := len(items)
	out := make([]PatternFrequency, 0, len(order))
	for _, p := range order {
		t := tallies[p]
		out = append(out, PatternFrequency{
			Pattern:    p,
			Count:      t.count,
			Percentage: percentage(t.count, total),
			AvgYear:    int(math.Round(mean(t.years))),
			Trend:      CalculateTrend(t.years),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Pattern < out[j].Pattern
	})
	if len(out) > maxPatternFrequencies {
		out = out[:maxPatternFrequencies]
	}
	return out
}

func topicPatternMatrix(items []analyzed) []TopicPatternRow {
	type cell struct {
		freq        int
		confidences []float64
	}
	type row struct {
		id       int64
		name     string
		count    int
		cells    map[string]*cell
		patterns []string
	}

	rows := make(map[int64]*row)
	order := make([]int64, 0)
	for _, it := range items {
		id, ok := it.topicID()
		if !ok {
			continue
		}
		r, ok := rows[id]
		if !ok {
			r = &row{id: id, name: it.q.TopicName, cells: make(map[string]*cell)}
			rows[id] = r
			order = append(order, id)
		}
		r.count++
		for _, p := range it.patterns {
			c, ok := r.cells[p]
			if !ok {
				c = &cell{}
				r.cells[p] = c
				r.patterns = append(r.patterns, p)
			}
			c.freq++
			if it.signal.Confidence != nil {
				c.confidences = append(c.confidences, *it.signal.Confidence)
			}
		}
	}

	out := make([]TopicPatternRow, 0, len(order))
	for _, id := range order {
		r := rows[id]
		cells := make([]TopicPatternCell, 0, len(r.patterns))
		for _, p := range r.patterns {
			c := r.cells[p]
			ratio := float64(c.freq) / float64(r.count)
			tc := TopicPatternCell{
				Pattern:        p,
				Frequency:      c.freq,
				FrequencyRatio: round2(ratio),
				Reliability:    round2(ratio),
			}
			if len(c.confidences) > 0 {
				m := meanFloat(c.confidences)
				rounded := round2(m)
				tc.MeanConfidence = &rounded
				tc.Reliability = round2(0.5*ratio + 0.5*m)
			}
			cells = append(cells, tc)
		}
		sort.SliceStable(cells, func(i, j int) bool {
			if cells[i].Frequency != cells[j].Frequency {
				return cells[i].Frequency > cells[j].Frequency
			}
			return cells[i].Pattern < cells[j].Pattern
		})
		out = append(out, TopicPatternRow{TopicID: r.id, Topic: r.name, QuestionCount: r.count, Patterns: cells})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].QuestionCount != out[j].QuestionCount {
			return out[i].QuestionCount > out[j].QuestionCount
		}
		return out[i].Topic < out[j].Topic
	})
	return out
}

func percentage(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return round2(float64(n) / float64(total) * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func meanFloat(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}
