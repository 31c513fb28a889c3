package report

import (
	"fmt"
	"sort"

	"examintel/internal/masterdata"
)

const (
	flashcardsPerOccurrence = 5
	questionsPerOccurrence  = 3
	prerequisiteMinFreq     = 3
)

func priorityFor(examFrequency int) Priority {
	switch {
	case examFrequency >= 5:
		return PriorityHigh
	case examFrequency >= 3:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

type topicFrequency struct {
	id    int64
	name  string
	count int
}

// topicFrequencies counts analyzed questions per topic, most frequent first.
func topicFrequencies(items []analyzed) []topicFrequency {
	byID := make(map[int64]*topicFrequency)
	for _, it := range items {
		id, ok := it.topicID()
		if !ok {
			continue
		}
		tf, ok := byID[id]
		if !ok {
			tf = &topicFrequency{id: id, name: it.q.TopicName}
			byID[id] = tf
		}
		tf.count++
	}
	out := make([]topicFrequency, 0, len(byID))
	for _, tf := range byID {
		out = append(out, *tf)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].id < out[j].id
	})
	return out
}

// contentRecommendations compares exam frequency with approved content per
// topic. Prerequisite recommendations are emitted only when includePrereq.
func contentRecommendations(topics []topicFrequency, coverage map[int64]Coverage, edges []EdgeObservation, includePrereq bool) []ContentRecommendation {
	strong := make(map[int64]bool)
	for _, e := range edges {
		if e.Strength == masterdata.StrengthStrong {
			strong[e.TopicID] = true
		}
	}

	out := make([]ContentRecommendation, 0)
	for _, tf := range topics {
		cov := coverage[tf.id]
		prio := priorityFor(tf.count)

		if target := tf.count * flashcardsPerOccurrence; target-cov.Flashcards > 0 {
			out = append(out, ContentRecommendation{
				TopicID:         tf.id,
				Topic:           tf.name,
				Type:            RecommendFlashcard,
				Priority:        prio,
				ExamFrequency:   tf.count,
				CurrentCoverage: cov.Flashcards,
				TargetCoverage:  target,
				Gap:             target - cov.Flashcards,
				Reason:          fmt.Sprintf("%d approved flashcards for a topic seen in %d analyzed questions", cov.Flashcards, tf.count),
			})
		}
		if target := tf.count * questionsPerOccurrence; target-cov.Questions > 0 {
			out = append(out, ContentRecommendation{
				TopicID:         tf.id,
				Topic:           tf.name,
				Type:            RecommendQuestion,
				Priority:        prio,
				ExamFrequency:   tf.count,
				CurrentCoverage: cov.Questions,
				TargetCoverage:  target,
				Gap:             target - cov.Questions,
				Reason:          fmt.Sprintf("%d approved practice questions for a topic seen in %d analyzed questions", cov.Questions, tf.count),
			})
		}
		if includePrereq && strong[tf.id] && tf.count >= prerequisiteMinFreq {
			p := PriorityMedium
			if tf.count >= 5 {
				p = PriorityHigh
			}
			out = append(out, ContentRecommendation{
				TopicID:       tf.id,
				Topic:         tf.name,
				Type:          RecommendPrerequisite,
				Priority:      p,
				ExamFrequency: tf.count,
				Reason:        "frequently examined topic with a STRONG prerequisite; check prerequisite content is complete",
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority.rank() < out[j].Priority.rank()
	})
	return out
}
