package question

import (
	"errors"
	"testing"

	"go.uber.org/zap"
)

func TestParsePayloadCanonicalAndLegacyFields(t *testing.T) {
	raw := []byte(`{
		"patternType": "SPOT",
		"patternConfidence": 0.8,
		"spotRule": "foramen lookup",
		"examTrap": {"confusedWith": "Foramen ovale", "keyDifference": "passes V3"},
		"spatialContext": ["middle cranial fossa"],
		"traps": [{"option": "B", "reason": "Look-alike", "confusion": "ovale vs rotundum"}],
		"extraLessonField": {"anything": true}
	}`)

	p, err := ParsePayload(raw)
	if err != nil {
		t.Fatalf("parse payload: %v", err)
	}
	if p.PatternType != "SPOT" || p.PatternConfidence == nil || *p.PatternConfidence != 0.8 {
		t.Fatalf("unexpected canonical fields: %+v", p)
	}
	if p.ExamTrap == nil || p.ExamTrap.ConfusedWith != "Foramen ovale" {
		t.Fatalf("unexpected exam trap: %+v", p.ExamTrap)
	}
	if len(p.Traps) != 1 || p.Traps[0].Reason != "Look-alike" {
		t.Fatalf("unexpected traps: %+v", p.Traps)
	}
}

func TestParsePayloadEmpty(t *testing.T) {
	for _, raw := range [][]byte{nil, []byte(""), []byte("  null ")} {
		p, err := ParsePayload(raw)
		if err != nil || p != nil {
			t.Fatalf("expected nil payload for %q, got %+v err=%v", raw, p, err)
		}
	}
}

func TestParsePayloadRejectsSchemaViolations(t *testing.T) {
	tests := []string{
		`"just a string"`,
		`{"patternConfidence": "high"}`,
		`{"patternConfidence": 250}`,
		`{"traps": "not-a-list"}`,
		`{"spatialContext": [1, 2]}`,
		`{broken`,
	}
	for _, raw := range tests {
		_, err := ParsePayload([]byte(raw))
		if !errors.Is(err, ErrInvalidPayload) {
			t.Fatalf("expected ErrInvalidPayload for %s, got %v", raw, err)
		}
	}
}

type rowStub struct {
	values []any
}

func (r rowStub) Scan(dest ...any) error {
	for i, d := range dest {
		switch p := d.(type) {
		case *int64:
			*p = r.values[i].(int64)
		case *int:
			*p = r.values[i].(int)
		case *string:
			*p = r.values[i].(string)
		case *[]byte:
			if r.values[i] != nil {
				*p = r.values[i].([]byte)
			}
		default:
			if v := r.values[i]; v != nil {
				if s, ok := d.(interface{ Scan(any) error }); ok {
					if err := s.Scan(v); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

func questionRow(payload []byte) rowStub {
	return rowStub{values: []any{
		int64(7), 2020, nil, nil, "Which foramen?",
		[]byte(`{"A":"Ovale","B":"Rotundum"}`), "A", nil,
		int64(1), "Anatomi", int64(3), "Kafatası", nil, "",
		nil, nil, []byte(`[]`),
		"ANALYZED", payload, "SPOT", 0.9,
	}}
}

func TestScanExamQuestionLenientPayload(t *testing.T) {
	s := NewService(nil, false, zap.NewNop())

	q, err := s.scanExamQuestion(questionRow([]byte(`{"patternConfidence":"bad"}`)))
	if err != nil {
		t.Fatalf("lenient scan should not fail: %v", err)
	}
	if q.Payload != nil {
		t.Fatalf("invalid payload should be dropped, got %+v", q.Payload)
	}
	if q.TopicID == nil || *q.TopicID != 3 || q.PatternType == nil || *q.PatternType != "SPOT" {
		t.Fatalf("unexpected question: %+v", q)
	}
	if q.Options.Text("a") != "Ovale" {
		t.Fatalf("expected option lookup by label, got %q", q.Options.Text("a"))
	}
}

func TestScanExamQuestionStrictPayload(t *testing.T) {
	s := NewService(nil, true, zap.NewNop())

	_, err := s.scanExamQuestion(questionRow([]byte(`{"patternConfidence":"bad"}`)))
	if !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload in strict mode, got %v", err)
	}
}

func TestOptionsLabelsSorted(t *testing.T) {
	o := Options{"C": "c", "A": "a", "B": "b"}
	got := o.Labels()
	if len(got) != 3 || got[0] != "A" || got[2] != "C" {
		t.Fatalf("unexpected labels: %v", got)
	}
}

func TestAnalysisStatusValid(t *testing.T) {
	if !StatusNeedsReview.Valid() || AnalysisStatus("DONE").Valid() {
		t.Fatalf("status validation mismatch")
	}
}
