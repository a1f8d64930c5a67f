package catalog

import (
	"context"
	"fmt"

	"github.com/mihaimyh/fitgen/pkg/generate"
	"github.com/mihaimyh/fitgen/pkg/normalize"
	"github.com/mihaimyh/fitgen/pkg/quota"
	"github.com/mihaimyh/fitgen/pkg/tasks"
)

// Mapper links generated exercise names to catalog ids
type Mapper struct {
	cache     *Cache
	generator generate.Generator
	logger    quota.Logger
}

// NewMapper creates a Mapper. generator may be nil, in which case only local
// name and alias matches are applied.
func NewMapper(cache *Cache, generator generate.Generator, logger quota.Logger) *Mapper {
	if logger == nil {
		logger = &quota.NoopLogger{}
	}
	return &Mapper{cache: cache, generator: generator, logger: logger}
}

// Annotate sets NormalizedExerciseID on every exercise it can match and
// returns how many exercises were annotated. Names the catalog does not
// match locally are sent to the fast model in one call.
func (m *Mapper) Annotate(ctx context.Context, p *normalize.Program) (int, error) {
	names := p.ExerciseNames()
	if len(names) == 0 {
		return 0, nil
	}

	entries, err := m.cache.Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("load catalog: %w", err)
	}
	idx := index(entries)

	ids := make(map[string]string, len(names))
	var unresolved []string
	for _, name := range names {
		if id, ok := idx[matchKey(name)]; ok {
			ids[name] = id
		} else {
			unresolved = append(unresolved, name)
		}
	}

	if len(unresolved) > 0 && m.generator != nil {
		mapped, err := m.askModel(ctx, unresolved, entries)
		if err != nil {
			// Local matches are still applied
			m.logger.Warn("exercise mapping call failed",
				quota.F("unresolved", len(unresolved)), quota.F("error", err.Error()))
		}
		for name, id := range mapped {
			ids[name] = id
		}
	}

	return p.Annotate(ids), nil
}

func (m *Mapper) askModel(ctx context.Context, names []string, entries []Entry) (map[string]string, error) {
	known := make(map[string]bool, len(entries))
	candidates := make([]tasks.CatalogCandidate, 0, len(entries))
	for _, e := range entries {
		known[e.ID] = true
		candidates = append(candidates, tasks.CatalogCandidate{ID: e.ID, Name: e.Name})
	}

	result, err := m.generator.Generate(ctx, generate.Request{
		Task: &tasks.ExerciseMappingTask{Names: names, Catalog: candidates},
	})
	if err != nil {
		return nil, err
	}

	mapped := make(map[string]string)
	for name, v := range normalize.ParseObject(result.Text) {
		id, ok := v.(string)
		if !ok || !known[id] {
			continue
		}
		mapped[name] = id
	}
	return mapped, nil
}
