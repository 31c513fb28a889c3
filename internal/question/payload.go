package question

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

var ErrInvalidPayload = errors.New("invalid analysis payload")

// AnalysisPayload is the subset of the AI analysis output the engines read.
// Lesson-specific extra fields are tolerated and ignored.
type AnalysisPayload struct {
	PatternType       string    `json:"patternType,omitempty"`
	PatternConfidence *float64  `json:"patternConfidence,omitempty"`
	SpotRule          string    `json:"spotRule,omitempty"`
	ExamTrap          *ExamTrap `json:"examTrap,omitempty"`
	Traps             []Trap    `json:"traps,omitempty"`
	SpatialContext    []string  `json:"spatialContext,omitempty"`
	ClinicalFindings  []string  `json:"clinicalFindings,omitempty"`
}

type ExamTrap struct {
	ConfusedWith  string `json:"confusedWith,omitempty"`
	KeyDifference string `json:"keyDifference,omitempty"`
}

type Trap struct {
	Option    string `json:"option,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Confusion string `json:"confusion,omitempty"`
}

const payloadSchemaURL = "schema://analysis-payload.json"

const payloadSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "patternType": {"type": ["string", "null"]},
    "patternConfidence": {"type": ["number", "null"], "minimum": 0, "maximum": 100},
    "spotRule": {"type": ["string", "null"]},
    "examTrap": {
      "type": ["object", "null"],
      "properties": {
        "confusedWith": {"type": ["string", "null"]},
        "keyDifference": {"type": ["string", "null"]}
      }
    },
    "traps": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "properties": {
          "option": {"type": ["string", "null"]},
          "reason": {"type": ["string", "null"]},
          "confusion": {"type": ["string", "null"]}
        }
      }
    },
    "spatialContext": {"type": ["array", "null"], "items": {"type": "string"}},
    "clinicalFindings": {"type": ["array", "null"], "items": {"type": "string"}}
  }
}`

var (
	compileOnce    sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

func payloadValidator() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader([]byte(payloadSchema)))
		if err != nil {
			compileErr = fmt.Errorf("parse payload schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(payloadSchemaURL, doc); err != nil {
			compileErr = fmt.Errorf("add payload schema: %w", err)
			return
		}
		compiledSchema, compileErr = c.Compile(payloadSchemaURL)
	})
	return compiledSchema, compileErr
}

// ParsePayload validates raw JSON against the payload schema and decodes it.
// Empty input and JSON null decode to a nil payload without error.
func ParsePayload(raw []byte) (*AnalysisPayload, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	schema, err := payloadValidator()
	if err != nil {
		return nil, err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := schema.Validate(inst); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	var p AnalysisPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return &p, nil
}
