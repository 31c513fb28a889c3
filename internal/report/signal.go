package report

import (
	"strings"

	"examintel/internal/masterdata"
	"examintel/internal/question"
)

const legacySpotRulePrefix = "LEGACY_SPOT_RULE:"

type SignalKind int

const (
	SignalAbsent SignalKind = iota
	SignalCanonical
	SignalLegacyAnatomy
	SignalLegacyGeneral
)

func (k SignalKind) String() string {
	switch k {
	case SignalCanonical:
		return "canonical"
	case SignalLegacyAnatomy:
		return "legacy_anatomy"
	case SignalLegacyGeneral:
		return "legacy_general"
	default:
		return "absent"
	}
}

// PatternSignal is the pattern identity of one question, resolved once from
// the promoted columns, the payload, or the lesson's legacy fields.
type PatternSignal struct {
	Kind        SignalKind
	PatternType string
	// Confidence is normalized to [0, 1]; nil when the source carried none.
	Confidence *float64

	SpotRule         string
	SpatialContext   []string
	ConfusedWith     string
	TrapLabels       []string
	ClinicalFindings []string
}

// NormalizeSignal resolves the pattern identity of q: promoted columns win
// over the payload, and the payload's patternType wins over legacy fields
// read according to the lesson profile.
func NormalizeSignal(q question.ExamQuestion, profile masterdata.PatternProfile) PatternSignal {
	p := q.Payload

	var payloadConf *float64
	if p != nil {
		payloadConf = p.PatternConfidence
	}

	if q.PatternType != nil && strings.TrimSpace(*q.PatternType) != "" {
		conf := q.PatternConfidence
		if conf == nil {
			conf = payloadConf
		}
		return PatternSignal{Kind: SignalCanonical, PatternType: strings.TrimSpace(*q.PatternType), Confidence: normalizeConfidence(conf)}
	}
	if p == nil {
		return PatternSignal{Kind: SignalAbsent}
	}
	if pt := strings.TrimSpace(p.PatternType); pt != "" {
		conf := payloadConf
		if conf == nil {
			conf = q.PatternConfidence
		}
		return PatternSignal{Kind: SignalCanonical, PatternType: pt, Confidence: normalizeConfidence(conf)}
	}

	if profile == masterdata.ProfileAnatomy {
		s := PatternSignal{
			Kind:           SignalLegacyAnatomy,
			SpotRule:       strings.TrimSpace(p.SpotRule),
			SpatialContext: nonEmpty(p.SpatialContext),
		}
		if p.ExamTrap != nil {
			s.ConfusedWith = strings.TrimSpace(p.ExamTrap.ConfusedWith)
		}
		if s.SpotRule == "" && len(s.SpatialContext) == 0 && s.ConfusedWith == "" {
			return PatternSignal{Kind: SignalAbsent}
		}
		return s
	}

	s := PatternSignal{Kind: SignalLegacyGeneral, ClinicalFindings: nonEmpty(p.ClinicalFindings)}
	for _, tr := range p.Traps {
		label := strings.TrimSpace(tr.Reason)
		if label == "" {
			label = strings.TrimSpace(tr.Confusion)
		}
		if label != "" {
			s.TrapLabels = append(s.TrapLabels, label)
		}
	}
	if len(s.TrapLabels) == 0 && len(s.ClinicalFindings) == 0 {
		return PatternSignal{Kind: SignalAbsent}
	}
	return s
}

// Patterns lists the distinct pattern labels the question contributes to
// frequency and matrix tallies.
func (s PatternSignal) Patterns() []string {
	var raw []string
	switch s.Kind {
	case SignalCanonical:
		raw = []string{s.PatternType}
	case SignalLegacyAnatomy:
		if s.SpotRule != "" {
			raw = append(raw, s.SpotRule)
		}
		raw = append(raw, s.SpatialContext...)
		if s.ConfusedWith != "" {
			raw = append(raw, "Confusion: "+s.ConfusedWith)
		}
	case SignalLegacyGeneral:
		raw = append(raw, s.TrapLabels...)
		raw = append(raw, s.ClinicalFindings...)
	}
	return dedupe(raw)
}

// PrimaryLabel is the single pattern type reported in yearly trends. Legacy
// signals without a spot rule fall back to their first pattern label.
func (s PatternSignal) PrimaryLabel() (string, bool) {
	switch {
	case s.Kind == SignalCanonical:
		return s.PatternType, true
	case s.Kind == SignalLegacyAnatomy && s.SpotRule != "":
		return legacySpotRulePrefix + s.SpotRule, true
	}
	if p := s.Patterns(); len(p) > 0 {
		return p[0], true
	}
	return "", false
}

// normalizeConfidence accepts both ratios and percentages.
func normalizeConfidence(v *float64) *float64 {
	if v == nil || *v < 0 {
		return nil
	}
	c := *v
	if c > 1 {
		c /= 100
	}
	if c > 1 {
		c = 1
	}
	return &c
}

func nonEmpty(in []string) []string {
	var out []string
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
