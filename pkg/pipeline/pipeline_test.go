package pipeline

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/fitgen/pkg/apperr"
	"github.com/mihaimyh/fitgen/pkg/auth"
	"github.com/mihaimyh/fitgen/pkg/catalog"
	"github.com/mihaimyh/fitgen/pkg/generate"
	"github.com/mihaimyh/fitgen/pkg/normalize"
	"github.com/mihaimyh/fitgen/pkg/quota"
	"github.com/mihaimyh/fitgen/pkg/tasks"
	"github.com/mihaimyh/fitgen/storage/memory"
)

var testStart = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

type fakeGenerator struct {
	mu    sync.Mutex
	text  string
	err   error
	calls []generate.Request
}

func (f *fakeGenerator) Generate(_ context.Context, req generate.Request) (*generate.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	return &generate.Result{Text: f.text, Model: "test-model"}, nil
}

func (f *fakeGenerator) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type generationRecord struct {
	task, outcome string
}

type recordingMetrics struct {
	quota.NoopMetrics
	mu          sync.Mutex
	generations []generationRecord
}

func (m *recordingMetrics) RecordGeneration(task, outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generations = append(m.generations, generationRecord{task, outcome})
}

func setupPipeline(t *testing.T, gen generate.Generator, mapper *catalog.Mapper) (*Pipeline, *quota.Manager, *recordingMetrics) {
	t.Helper()

	manager, err := quota.NewManager(memory.New(), quota.Config{
		Limits: map[quota.Plan]map[quota.Category]int{
			quota.PlanFree: {
				quota.CategoryRoutine:   2,
				quota.CategoryNutrition: 3,
				quota.CategoryCoach:     3,
				quota.CategoryAnalysis:  1,
			},
			quota.PlanPro: {
				quota.CategoryRoutine:   10,
				quota.CategoryNutrition: 10,
				quota.CategoryCoach:     10,
				quota.CategoryAnalysis:  10,
			},
		},
		Clock: quota.NewFakeClock(testStart),
	})
	require.NoError(t, err)

	metrics := &recordingMetrics{}
	p, err := New(Config{Manager: manager, Generator: gen, Mapper: mapper, Metrics: metrics})
	require.NoError(t, err)
	return p, manager, metrics
}

var freeUser = &auth.Identity{UserID: "user1", ClaimedPlan: quota.PlanFree}

func coachInput() Input {
	return Input{Task: tasks.CoachChat, Payload: json.RawMessage(`{"message":"how many rest days?"}`)}
}

func usage(t *testing.T, m *quota.Manager, cat quota.Category) int {
	t.Helper()
	ent, err := m.GetEntitlement(context.Background(), freeUser.UserID)
	require.NoError(t, err)
	return ent.Used(cat)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Generator: &fakeGenerator{}})
	assert.Error(t, err)

	manager, err := quota.NewManager(memory.New(), quota.Config{})
	require.NoError(t, err)
	_, err = New(Config{Manager: manager})
	assert.Error(t, err)
}

func TestRun_TextTask(t *testing.T) {
	gen := &fakeGenerator{text: "  Two rest days per week.\n"}
	p, manager, metrics := setupPipeline(t, gen, nil)

	out, err := p.Run(context.Background(), freeUser, coachInput())
	require.NoError(t, err)

	assert.Equal(t, "Two rest days per week.", out.Text)
	assert.Equal(t, quota.PlanFree, out.Plan)
	assert.Equal(t, 2, out.Remaining)
	assert.Equal(t, testStart.Add(quota.DefaultPeriod), out.ResetAt)
	assert.Equal(t, "test-model", out.Model)
	assert.Empty(t, out.Step)

	assert.Equal(t, 1, usage(t, manager, quota.CategoryCoach))
	assert.Equal(t, []generationRecord{{"coach_chat", "success"}}, metrics.generations)

	require.Len(t, gen.calls, 1)
	assert.Equal(t, quota.PlanFree, gen.calls[0].Plan)
}

func TestRun_ProgramTask(t *testing.T) {
	gen := &fakeGenerator{text: "```json\n{\"name\":\"Split\",\"days\":[{\"title\":\"A\",\"blocks\":[{\"exercises\":[{\"name\":\"Goblet Squat\",\"reps\":\"10\"}]}]}]}\n```"}
	mapper := catalog.NewMapper(
		catalog.NewCache(catalog.StaticSource{{ID: "goblet_squat", Name: "Goblet Squat"}}, catalog.CacheConfig{}),
		nil, nil)
	p, _, _ := setupPipeline(t, gen, mapper)

	out, err := p.Run(context.Background(), freeUser, Input{
		Task:    tasks.RoutineProgram,
		Payload: json.RawMessage(`{"totalDays":3}`),
	})
	require.NoError(t, err)

	var program normalize.Program
	require.NoError(t, json.Unmarshal([]byte(out.Text), &program))
	assert.Len(t, program.Days, 3)
	assert.Equal(t, normalize.StepNormalized, out.Step)
	assert.Equal(t, "goblet_squat", program.Days[0].Blocks[0].Exercises[0].NormalizedExerciseID)
	assert.Equal(t, 1, out.Remaining)
}

func TestRun_NutritionTask(t *testing.T) {
	gen := &fakeGenerator{text: `{"food":"Oats","calories":300,"protein":10,"carbs":50,"fats":6,"mealType":"breakfast",
		"ingredients":[{"name":"Oats","calories":300,"protein":10,"carbs":50,"fats":6}]}`}
	p, _, _ := setupPipeline(t, gen, nil)

	out, err := p.Run(context.Background(), freeUser, Input{
		Task:    tasks.NutritionParse,
		Payload: json.RawMessage(`{"description":"a bowl of oats"}`),
	})
	require.NoError(t, err)

	var log normalize.NutritionLog
	require.NoError(t, json.Unmarshal([]byte(out.Text), &log))
	assert.Equal(t, "Oats", log.Food)
	assert.Equal(t, normalize.StepDirect, out.Step)
}

func TestRun_QuotaExhaustionSkipsModel(t *testing.T) {
	gen := &fakeGenerator{text: "ok"}
	p, manager, _ := setupPipeline(t, gen, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := p.Run(ctx, freeUser, coachInput())
		require.NoError(t, err)
	}

	_, err := p.Run(ctx, freeUser, coachInput())
	require.Error(t, err)
	assert.ErrorIs(t, err, quota.ErrQuotaExceeded)

	typed := apperr.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, apperr.CodeQuotaExceeded, typed.Code())
	details := typed.Details().(map[string]any)
	assert.Equal(t, 3, details["used"])
	assert.Equal(t, 3, details["limit"])

	assert.Equal(t, 3, gen.count())
	assert.Equal(t, 3, usage(t, manager, quota.CategoryCoach))
}

func TestRun_RefundOnGenerationFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code apperr.Code
	}{
		{"provider error", &generate.ProviderError{StatusCode: 500, Body: "boom"}, apperr.CodeProviderError},
		{"empty response", generate.ErrEmptyResponse, apperr.CodeEmptyResponse},
		{"missing key", generate.ErrMissingAPIKey, apperr.CodeConfigError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{err: tt.err}
			p, manager, metrics := setupPipeline(t, gen, nil)

			_, err := p.Run(context.Background(), freeUser, coachInput())
			require.Error(t, err)
			assert.Equal(t, tt.code, apperr.From(err).Code())

			// admitted then released: the record exists with zero usage
			assert.Equal(t, 0, usage(t, manager, quota.CategoryCoach))
			assert.Equal(t, []generationRecord{{"coach_chat", string(tt.code)}}, metrics.generations)
		})
	}
}

// ctxStorage fails writes on a done context, like a networked backend would
type ctxStorage struct {
	*memory.Storage
}

func (s ctxStorage) UpdateEntitlement(ctx context.Context, userID string, fn quota.UpdateFunc) (*quota.Entitlement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.Storage.UpdateEntitlement(ctx, userID, fn)
}

// cancellingGenerator simulates a client disconnect during the model call
type cancellingGenerator struct {
	cancel context.CancelFunc
}

func (g *cancellingGenerator) Generate(ctx context.Context, _ generate.Request) (*generate.Result, error) {
	g.cancel()
	return nil, &generate.ProviderError{Err: ctx.Err()}
}

func TestRun_RefundSurvivesCancelledRequest(t *testing.T) {
	store := ctxStorage{memory.New()}
	manager, err := quota.NewManager(store, quota.Config{Clock: quota.NewFakeClock(testStart)})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, err := New(Config{Manager: manager, Generator: &cancellingGenerator{cancel: cancel}})
	require.NoError(t, err)

	_, err = p.Run(ctx, freeUser, coachInput())
	require.Error(t, err)
	assert.Equal(t, apperr.CodeProviderError, apperr.From(err).Code())
	assert.Equal(t, 0, usage(t, manager, quota.CategoryCoach))
}

func TestRun_AdmissionErrorsConsumeNothing(t *testing.T) {
	tests := []struct {
		name string
		in   Input
		code apperr.Code
	}{
		{"unknown task", Input{Task: "dance_battle", Payload: json.RawMessage(`{}`)}, apperr.CodeUnknownTask},
		{"internal task", Input{Task: tasks.ExerciseMapping, Payload: json.RawMessage(`{}`)}, apperr.CodeUnknownTask},
		{"invalid payload", Input{Task: tasks.RoutineProgram, Payload: json.RawMessage(`{"totalDays":9}`)}, apperr.CodeInvalidRequest},
		{"missing image", Input{Task: tasks.NutritionPhoto, Payload: json.RawMessage(`{}`)}, apperr.CodeInvalidRequest},
		{"bad image", Input{Task: tasks.NutritionPhoto, Payload: json.RawMessage(`{}`), Image: "data:text/plain;base64,aGVsbG8="}, apperr.CodeInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{text: "ok"}
			p, manager, _ := setupPipeline(t, gen, nil)

			_, err := p.Run(context.Background(), freeUser, tt.in)
			require.Error(t, err)
			assert.Equal(t, tt.code, apperr.From(err).Code())
			assert.Equal(t, 0, gen.count())

			_, err = manager.GetEntitlement(context.Background(), freeUser.UserID)
			assert.ErrorIs(t, err, quota.ErrEntitlementNotFound)
		})
	}
}

func TestRun_PhotoUsesImage(t *testing.T) {
	gen := &fakeGenerator{text: `{"food":"Salad","calories":0,"protein":0,"carbs":0,"fats":0,"ingredients":[]}`}
	p, _, _ := setupPipeline(t, gen, nil)

	png := "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNk+M9QDwADhgGAWjR9awAAAABJRU5ErkJggg=="
	_, err := p.Run(context.Background(), &auth.Identity{UserID: "user1", ClaimedPlan: quota.PlanPro}, Input{
		Task:    tasks.NutritionPhoto,
		Payload: json.RawMessage(`{}`),
		Image:   "data:image/png;base64," + png,
	})
	require.NoError(t, err)

	require.Len(t, gen.calls, 1)
	require.NotNil(t, gen.calls[0].Image)
	assert.Equal(t, "image/png", gen.calls[0].Image.MIMEType)
	assert.Equal(t, quota.PlanPro, gen.calls[0].Plan)
}

func TestRun_StoredPlanWins(t *testing.T) {
	gen := &fakeGenerator{text: "ok"}
	p, manager, _ := setupPipeline(t, gen, nil)
	ctx := context.Background()

	require.NoError(t, manager.SetPlan(ctx, "user1", quota.PlanPro, "sub_1"))

	out, err := p.Run(ctx, freeUser, coachInput())
	require.NoError(t, err)
	assert.Equal(t, quota.PlanPro, out.Plan)
	assert.Equal(t, 9, out.Remaining)
}

func TestRun_RequiresIdentity(t *testing.T) {
	p, _, _ := setupPipeline(t, &fakeGenerator{}, nil)
	_, err := p.Run(context.Background(), nil, coachInput())
	assert.Equal(t, apperr.CodeUnauthenticated, apperr.From(err).Code())
}
