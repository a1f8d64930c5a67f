// Package normalize turns free-form model text into schema-valid programs and
// nutrition logs through an ordered ladder of repair steps.
package normalize

import (
	"github.com/mihaimyh/fitgen/pkg/quota"
)

// Step names reported by the ladders
const (
	StepDirect     = "direct"
	StepNormalized = "normalized"
	StepFallback   = "fallback"
)

const (
	schemaProgram   = "program"
	schemaNutrition = "nutrition"
)

// Normalizer runs the program and nutrition ladders
type Normalizer struct {
	logger  quota.Logger
	metrics quota.Metrics
}

// New creates a Normalizer. Nil logger or metrics fall back to no-ops.
func New(logger quota.Logger, metrics quota.Metrics) *Normalizer {
	if logger == nil {
		logger = &quota.NoopLogger{}
	}
	if metrics == nil {
		metrics = &quota.NoopMetrics{}
	}
	return &Normalizer{logger: logger, metrics: metrics}
}

// ProgramSteps is the program ladder: direct, normalized, fallback
func ProgramSteps(text string, days int) []Step[*Program] {
	obj := ParseObject(text)
	return []Step[*Program]{
		{Name: StepDirect, Attempt: func() (*Program, error) {
			p, err := DecodeProgram(obj)
			if err != nil {
				return nil, err
			}
			return p, ValidateProgram(p, days)
		}},
		{Name: StepNormalized, Attempt: func() (*Program, error) {
			p := NormalizeProgram(obj, days)
			return p, ValidateProgram(p, days)
		}},
		{Name: StepFallback, Attempt: func() (*Program, error) {
			p := FallbackProgram(days)
			return p, ValidateProgram(p, days)
		}},
	}
}

// NutritionSteps is the nutrition ladder: direct, normalized. There is no fallback.
func NutritionSteps(text string) []Step[*NutritionLog] {
	obj := ParseObject(text)
	return []Step[*NutritionLog]{
		{Name: StepDirect, Attempt: func() (*NutritionLog, error) {
			n, err := DecodeNutrition(obj)
			if err != nil {
				return nil, err
			}
			return n, ValidateNutrition(n)
		}},
		{Name: StepNormalized, Attempt: func() (*NutritionLog, error) {
			n := NormalizeNutrition(obj)
			return n, ValidateNutrition(n)
		}},
	}
}

// Program normalizes model text into a program with exactly days entries
func (n *Normalizer) Program(text string, days int) (*Program, string, error) {
	p, step, err := RunLadder(ProgramSteps(text, days))
	n.record(schemaProgram, step, err)
	return p, step, err
}

// Nutrition normalizes model text into a nutrition log
func (n *Normalizer) Nutrition(text string) (*NutritionLog, string, error) {
	log, step, err := RunLadder(NutritionSteps(text))
	n.record(schemaNutrition, step, err)
	return log, step, err
}

func (n *Normalizer) record(schema, step string, err error) {
	if err != nil {
		n.metrics.RecordNormalizationStep(schema, "failed")
		n.logger.Warn("model output failed validation",
			quota.F("schema", schema), quota.F("error", err.Error()))
		return
	}
	n.metrics.RecordNormalizationStep(schema, step)
	if step != StepDirect {
		n.logger.Info("model output repaired", quota.F("schema", schema), quota.F("step", step))
	}
}
