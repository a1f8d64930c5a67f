package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/fitgen/pkg/generate"
	"github.com/mihaimyh/fitgen/pkg/normalize"
	"github.com/mihaimyh/fitgen/pkg/tasks"
)

type fakeGenerator struct {
	text string
	err  error
	reqs []generate.Request
}

func (f *fakeGenerator) Generate(_ context.Context, req generate.Request) (*generate.Result, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return &generate.Result{Text: f.text}, nil
}

var testCatalog = StaticSource{
	{ID: "goblet_squat", Name: "Goblet Squat"},
	{ID: "push_up", Name: "Push Up", Aliases: []string{"press-up"}},
	{ID: "db_row", Name: "One-Arm Dumbbell Row"},
	{ID: "rdl", Name: "Romanian Deadlift", Aliases: []string{"RDL"}},
	{ID: "plank", Name: "Front Plank"},
}

func TestMatchKey(t *testing.T) {
	assert.Equal(t, "push up", matchKey("Push-Up"))
	assert.Equal(t, "push up", matchKey("  push   up!! "))
	assert.Equal(t, "3 4 sit up", matchKey("3/4 Sit-Up"))
}

func TestMapper_LocalAndModel(t *testing.T) {
	gen := &fakeGenerator{text: "```json\n{\"Dumbbell Row\": \"db_row\", \"Plank\": \"plank\", \"Romanian Deadlift\": \"not_in_catalog\"}\n```"}
	mapper := NewMapper(NewCache(testCatalog, CacheConfig{}), gen, nil)

	p := normalize.FallbackProgram(1)
	n, err := mapper.Annotate(context.Background(), p)
	require.NoError(t, err)

	// Goblet Squat, Push-Up and Romanian Deadlift resolve locally; Row and Plank via the model
	assert.Equal(t, 5, n)
	ex := p.Days[0].Blocks
	assert.Equal(t, "goblet_squat", ex[0].Exercises[0].NormalizedExerciseID)
	assert.Equal(t, "push_up", ex[0].Exercises[1].NormalizedExerciseID)
	assert.Equal(t, "db_row", ex[1].Exercises[0].NormalizedExerciseID)
	assert.Equal(t, "rdl", ex[1].Exercises[1].NormalizedExerciseID)
	assert.Equal(t, "plank", ex[2].Exercises[0].NormalizedExerciseID)

	require.Len(t, gen.reqs, 1)
	task, ok := gen.reqs[0].Task.(*tasks.ExerciseMappingTask)
	require.True(t, ok)
	assert.Equal(t, []string{"Dumbbell Row", "Plank"}, task.Names)
	assert.Len(t, task.Catalog, len(testCatalog))
}

func TestMapper_ModelFailureKeepsLocalMatches(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("provider down")}
	mapper := NewMapper(NewCache(testCatalog, CacheConfig{}), gen, nil)

	p := normalize.FallbackProgram(1)
	n, err := mapper.Annotate(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Empty(t, p.Days[0].Blocks[2].Exercises[0].NormalizedExerciseID)
}

func TestMapper_CatalogUnavailable(t *testing.T) {
	mapper := NewMapper(NewCache(StaticSource(nil), CacheConfig{}), nil, nil)

	p := normalize.FallbackProgram(1)
	_, err := mapper.Annotate(context.Background(), p)
	assert.ErrorIs(t, err, ErrEmptyCatalog)
	assert.Empty(t, p.Days[0].Blocks[0].Exercises[0].NormalizedExerciseID)
}

func TestMapper_NoModelCallWhenAllLocal(t *testing.T) {
	gen := &fakeGenerator{}
	mapper := NewMapper(NewCache(testCatalog, CacheConfig{}), gen, nil)

	p := &normalize.Program{Days: []normalize.Day{{Blocks: []normalize.Block{{Exercises: []normalize.Exercise{
		{Name: "press up"}, {Name: "RDL"},
	}}}}}}
	n, err := mapper.Annotate(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Empty(t, gen.reqs)
}
