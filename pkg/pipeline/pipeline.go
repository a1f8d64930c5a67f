// Package pipeline runs one generation request end to end: task decoding,
// quota admission, the model call, output normalization and the refund of
// the admitted unit when generation fails.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mihaimyh/fitgen/pkg/apperr"
	"github.com/mihaimyh/fitgen/pkg/auth"
	"github.com/mihaimyh/fitgen/pkg/catalog"
	"github.com/mihaimyh/fitgen/pkg/generate"
	"github.com/mihaimyh/fitgen/pkg/normalize"
	"github.com/mihaimyh/fitgen/pkg/quota"
	"github.com/mihaimyh/fitgen/pkg/tasks"
)

const (
	// DefaultReleaseTimeout bounds the refund write after a failed generation
	DefaultReleaseTimeout = 5 * time.Second

	outcomeSuccess = "success"
)

// Input is a decoded generation request
type Input struct {
	Task          tasks.ID        `json:"task"`
	Payload       json.RawMessage `json:"payload"`
	Image         string          `json:"image,omitempty"`
	ImageMimeType string          `json:"imageMimeType,omitempty"`
}

// Output is a successful generation
type Output struct {
	Text      string
	Plan      quota.Plan
	Remaining int
	ResetAt   time.Time

	// Step is the normalization step that produced Text, empty for text tasks
	Step  string
	Model string
}

// Config holds pipeline dependencies
type Config struct {
	Manager    *quota.Manager
	Generator  generate.Generator
	Normalizer *normalize.Normalizer

	// Mapper is optional. When set, generated programs are annotated with
	// catalog exercise ids.
	Mapper *catalog.Mapper

	// ReleaseTimeout bounds the refund write (default: 5s)
	ReleaseTimeout time.Duration

	Clock   quota.Clock
	Logger  quota.Logger
	Metrics quota.Metrics
}

// Pipeline executes generation requests
type Pipeline struct {
	manager        *quota.Manager
	generator      generate.Generator
	normalizer     *normalize.Normalizer
	mapper         *catalog.Mapper
	releaseTimeout time.Duration
	clock          quota.Clock
	logger         quota.Logger
	metrics        quota.Metrics
}

// New creates a Pipeline
func New(config Config) (*Pipeline, error) {
	if config.Manager == nil {
		return nil, errors.New("quota manager is required")
	}
	if config.Generator == nil {
		return nil, errors.New("generator is required")
	}
	if config.ReleaseTimeout == 0 {
		config.ReleaseTimeout = DefaultReleaseTimeout
	}
	if config.Clock == nil {
		config.Clock = quota.SystemClock{}
	}
	if config.Logger == nil {
		config.Logger = &quota.NoopLogger{}
	}
	if config.Metrics == nil {
		config.Metrics = &quota.NoopMetrics{}
	}
	if config.Normalizer == nil {
		config.Normalizer = normalize.New(config.Logger, config.Metrics)
	}

	return &Pipeline{
		manager:        config.Manager,
		generator:      config.Generator,
		normalizer:     config.Normalizer,
		mapper:         config.Mapper,
		releaseTimeout: config.ReleaseTimeout,
		clock:          config.Clock,
		logger:         config.Logger,
		metrics:        config.Metrics,
	}, nil
}

// Run executes one request for the caller. Admission failures (bad task,
// bad payload, exhausted quota) consume nothing. Once a unit is admitted,
// any refundable failure releases it before the error is returned.
func (p *Pipeline) Run(ctx context.Context, caller *auth.Identity, in Input) (*Output, error) {
	if caller == nil || caller.UserID == "" {
		return nil, apperr.New(apperr.CodeUnauthenticated, "missing caller identity")
	}

	task, err := tasks.Decode(in.Task, in.Payload, strings.TrimSpace(in.Image) != "")
	if err != nil {
		return nil, err
	}

	var img *generate.Image
	if it, ok := task.(tasks.ImageTask); ok && it.RequiresImage() {
		img, err = generate.ParseImage(in.Image, in.ImageMimeType)
		if err != nil {
			return nil, err
		}
	}

	decision, err := p.manager.CheckAndConsume(ctx, caller.UserID, caller.ClaimedPlan, task.Category())
	if err != nil {
		return nil, fmt.Errorf("quota admission: %w", err)
	}
	if !decision.Allowed {
		return nil, quotaExceeded(decision)
	}

	start := p.clock.Now()
	out, err := p.generate(ctx, task, decision.Plan, img)
	duration := p.clock.Now().Sub(start)

	if err != nil {
		code := apperr.From(err).Code()
		p.metrics.RecordGeneration(string(task.ID()), string(code), duration)
		p.logger.Warn("generation failed",
			quota.F("task", string(task.ID())),
			quota.F("user_id", caller.UserID),
			quota.F("error_code", string(code)),
			quota.F("error", err.Error()))

		if apperr.Refundable(err) {
			p.release(ctx, caller.UserID, task)
		}
		return nil, err
	}

	p.metrics.RecordGeneration(string(task.ID()), outcomeSuccess, duration)
	p.logger.Info("generation completed",
		quota.F("task", string(task.ID())),
		quota.F("user_id", caller.UserID),
		quota.F("model", out.Model),
		quota.F("step", out.Step),
		quota.F("duration_ms", duration.Milliseconds()))

	out.Plan = decision.Plan
	out.Remaining = decision.Remaining
	out.ResetAt = decision.ResetAt
	return out, nil
}

func (p *Pipeline) generate(ctx context.Context, task tasks.Task, plan quota.Plan, img *generate.Image) (*Output, error) {
	res, err := p.generator.Generate(ctx, generate.Request{Task: task, Plan: plan, Image: img})
	if err != nil {
		return nil, err
	}
	out := &Output{Model: res.Model}

	switch task.Output() {
	case tasks.OutputProgram:
		days := 1
		if rt, ok := task.(*tasks.RoutineProgramTask); ok {
			days = rt.TotalDays
		}
		program, step, err := p.normalizer.Program(res.Text, days)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", task.ID(), err)
		}
		p.annotate(ctx, program)
		out.Step = step
		out.Text, err = marshal(program)
		if err != nil {
			return nil, err
		}

	case tasks.OutputNutrition:
		log, step, err := p.normalizer.Nutrition(res.Text)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", task.ID(), err)
		}
		out.Step = step
		out.Text, err = marshal(log)
		if err != nil {
			return nil, err
		}

	default:
		out.Text = strings.TrimSpace(res.Text)
	}

	return out, nil
}

// annotate runs the catalog mapping pass. Its failures never fail the request.
func (p *Pipeline) annotate(ctx context.Context, program *normalize.Program) {
	if p.mapper == nil {
		return
	}
	n, err := p.mapper.Annotate(ctx, program)
	if err != nil {
		p.logger.Warn("exercise mapping skipped", quota.F("error", err.Error()))
		return
	}
	p.logger.Debug("exercises mapped", quota.F("count", n))
}

// release refunds one unit on a context detached from the request, so a
// client disconnect does not skip the refund.
func (p *Pipeline) release(ctx context.Context, userID string, task tasks.Task) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.releaseTimeout)
	defer cancel()

	if err := p.manager.Release(ctx, userID, task.Category()); err != nil {
		p.logger.Error("quota refund failed",
			quota.F("user_id", userID),
			quota.F("task", string(task.ID())),
			quota.F("category", string(task.Category())),
			quota.F("error", err.Error()))
	}
}

func quotaExceeded(d *quota.Decision) error {
	return apperr.Wrap(apperr.CodeQuotaExceeded, quota.ErrQuotaExceeded,
		fmt.Sprintf("%s quota exhausted for the %s plan", d.Category, d.Plan)).
		WithDetails(map[string]any{
			"category": d.Category,
			"plan":     d.Plan,
			"used":     d.Used,
			"limit":    d.Limit,
			"resetAt":  d.ResetAt.UTC().Format(time.RFC3339),
		})
}

func marshal(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode output: %w", err)
	}
	return string(b), nil
}
