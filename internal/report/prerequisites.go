package report

import (
	"math"
	"sort"

	"examintel/internal/masterdata"
)

// prerequisiteImpact sums edge frequencies per prerequisite and keeps the
// strongest strength observed. examImportance is clamped to [0, 100].
func prerequisiteImpact(edges []EdgeObservation, totalQuestions int) []PrerequisiteImpact {
	type agg struct {
		impact PrerequisiteImpact
		topics map[int64]struct{}
	}
	byID := make(map[int64]*agg)
	order := make([]int64, 0)
	for _, e := range edges {
		a, ok := byID[e.PrerequisiteID]
		if !ok {
			a = &agg{
				impact: PrerequisiteImpact{PrerequisiteID: e.PrerequisiteID, Name: e.PrerequisiteName},
				topics: make(map[int64]struct{}),
			}
			byID[e.PrerequisiteID] = a
			order = append(order, e.PrerequisiteID)
		}
		if e.Frequency > 0 {
			a.impact.Frequency += e.Frequency
		}
		a.impact.Strength = masterdata.MaxStrength(a.impact.Strength, e.Strength)
		a.topics[e.TopicID] = struct{}{}
	}

	out := make([]PrerequisiteImpact, 0, len(order))
	for _, id := range order {
		a := byID[id]
		a.impact.TopicCount = len(a.topics)
		a.impact.ExamImportance = examImportance(a.impact.Frequency, totalQuestions)
		out = append(out, a.impact)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ExamImportance != out[j].ExamImportance {
			return out[i].ExamImportance > out[j].ExamImportance
		}
		if out[i].Frequency != out[j].Frequency {
			return out[i].Frequency > out[j].Frequency
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func examImportance(frequency, totalQuestions int) int {
	if totalQuestions <= 0 || frequency <= 0 {
		return 0
	}
	v := math.Min(100, float64(frequency)/float64(totalQuestions)*100)
	return int(math.Round(v))
}
