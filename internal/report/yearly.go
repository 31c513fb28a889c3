package report

import "sort"

const yearlyTopN = 5

func yearlyTrends(items []analyzed) []YearlyTrend {
	byYear := make(map[int][]analyzed)
	years := make([]int, 0)
	for _, it := range items {
		if _, ok := byYear[it.q.Year]; !ok {
			years = append(years, it.q.Year)
		}
		byYear[it.q.Year] = append(byYear[it.q.Year], it)
	}
	sort.Ints(years)

	firstSeen := make(map[int64]int)
	out := make([]YearlyTrend, 0, len(years))
	for _, year := range years {
		group := byYear[year]
		topicCounts := make(map[int64]int)
		topicNames := make(map[int64]string)
		patternCounts := make(map[string]int)
		newTopics := make([]string, 0)

		for _, it := range group {
			if id, ok := it.topicID(); ok {
				topicCounts[id]++
				topicNames[id] = it.q.TopicName
				if _, seen := firstSeen[id]; !seen {
					firstSeen[id] = year
					newTopics = append(newTopics, it.q.TopicName)
				}
			}
			if label, ok := it.signal.PrimaryLabel(); ok {
				patternCounts[label]++
			}
		}

		topics := make([]TopicShare, 0, len(topicCounts))
		for id, n := range topicCounts {
			topics = append(topics, TopicShare{Topic: topicNames[id], Count: n, Percentage: percentage(n, len(group))})
		}
		sort.Slice(topics, func(i, j int) bool {
			if topics[i].Count != topics[j].Count {
				return topics[i].Count > topics[j].Count
			}
			return topics[i].Topic < topics[j].Topic
		})
		if len(topics) > yearlyTopN {
			topics = topics[:yearlyTopN]
		}

		patterns := make([]PatternCount, 0, len(patternCounts))
		for p, n := range patternCounts {
			patterns = append(patterns, PatternCount{PatternType: p, Count: n})
		}
		sort.Slice(patterns, func(i, j int) bool {
			if patterns[i].Count != patterns[j].Count {
				return patterns[i].Count > patterns[j].Count
			}
			return patterns[i].PatternType < patterns[j].PatternType
		})
		if len(patterns) > yearlyTopN {
			patterns = patterns[:yearlyTopN]
		}

		sort.Strings(newTopics)
		out = append(out, YearlyTrend{
			Year:           year,
			TotalQuestions: len(group),
			TopTopics:      topics,
			TopPatterns:    patterns,
			NewTopics:      newTopics,
		})
	}
	return out
}
