package report

import (
	"sort"
	"strings"

	"examintel/internal/masterdata"
)

const (
	maxTrapHotspots     = 30
	maxConfusionPairs   = 5
	anatomyTrapType     = "Confusion"
	defaultTrapType     = "General"
	highRiskFrequency   = 5
	mediumRiskFrequency = 3
)

func riskLevel(frequency int) RiskLevel {
	switch {
	case frequency >= highRiskFrequency:
		return RiskHigh
	case frequency >= mediumRiskFrequency:
		return RiskMedium
	default:
		return RiskLow
	}
}

func trapHotspots(items []analyzed) []TrapHotspot {
	type key struct {
		topicID  int64
		trapType string
	}
	spots := make(map[key]*TrapHotspot)
	order := make([]key, 0)

	record := func(topicID int64, topic, trapType string, pair *ConfusionPair) {
		k := key{topicID, trapType}
		h, ok := spots[k]
		if !ok {
			h = &TrapHotspot{TopicID: topicID, Topic: topic, TrapType: trapType, ConfusionPairs: []ConfusionPair{}}
			spots[k] = h
			order = append(order, k)
		}
		h.Frequency++
		if pair != nil && len(h.ConfusionPairs) < maxConfusionPairs && !containsPair(h.ConfusionPairs, *pair) {
			h.ConfusionPairs = append(h.ConfusionPairs, *pair)
		}
	}

	for _, it := range items {
		topicID, ok := it.topicID()
		if !ok || it.q.Payload == nil {
			continue
		}
		p := it.q.Payload

		if it.profile == masterdata.ProfileAnatomy {
			if p.ExamTrap == nil {
				continue
			}
			confused := strings.TrimSpace(p.ExamTrap.ConfusedWith)
			diff := strings.TrimSpace(p.ExamTrap.KeyDifference)
			if confused == "" && diff == "" {
				continue
			}
			var pair *ConfusionPair
			if confused != "" {
				pair = &ConfusionPair{
					Concept1:       strings.TrimSpace(it.q.Options.Text(it.q.CorrectAnswer)),
					Concept2:       confused,
					Differentiator: diff,
				}
			}
			record(topicID, it.q.TopicName, anatomyTrapType, pair)
			continue
		}

		for _, tr := range p.Traps {
			reason := strings.TrimSpace(tr.Reason)
			trapType := reason
			if trapType == "" {
				trapType = defaultTrapType
			}
			var pair *ConfusionPair
			if c := strings.TrimSpace(tr.Confusion); c != "" {
				pair = &ConfusionPair{Concept1: it.q.TopicName, Concept2: c, Differentiator: reason}
			}
			record(topicID, it.q.TopicName, trapType, pair)
		}
	}

	out := make([]TrapHotspot, 0, len(order))
	for _, k := range order {
		h := spots[k]
		h.RiskLevel = riskLevel(h.Frequency)
		out = append(out, *h)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Frequency != out[j].Frequency {
			return out[i].Frequency > out[j].Frequency
		}
		if out[i].Topic != out[j].Topic {
			return out[i].Topic < out[j].Topic
		}
		return out[i].TrapType < out[j].TrapType
	})
	if len(out) > maxTrapHotspots {
		out = out[:maxTrapHotspots]
	}
	return out
}

func containsPair(pairs []ConfusionPair, p ConfusionPair) bool {
	for _, existing := range pairs {
		if existing == p {
			return true
		}
	}
	return false
}
