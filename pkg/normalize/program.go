package normalize

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Program is a generated multi-day training program
type Program struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
	Days        []Day  `json:"days" validate:"required,min=1,max=7,dive"`
}

// Day is one training day
type Day struct {
	Title  string  `json:"title" validate:"required"`
	Focus  string  `json:"focus" validate:"required"`
	Mode   string  `json:"mode" validate:"required,oneof=straight superset circuit"`
	Bg     string  `json:"bg" validate:"required"`
	Border string  `json:"border" validate:"required"`
	Blocks []Block `json:"blocks" validate:"required,min=1,dive"`
}

// Block is a group of exercises performed together, followed by rest
type Block struct {
	Rest      int        `json:"rest" validate:"min=0,max=600"`
	Exercises []Exercise `json:"exercises" validate:"required,min=1,dive"`
}

// Exercise is one movement prescription
type Exercise struct {
	Name                 string `json:"name" validate:"required"`
	Reps                 string `json:"reps" validate:"required"`
	Note                 string `json:"note,omitempty"`
	Icon                 string `json:"icon" validate:"required,oneof=barbell dumbbell bodyweight machine cable kettlebell band cardio"`
	NormalizedExerciseID string `json:"normalizedExerciseId,omitempty"`
}

const (
	defaultProgramName = "Custom Program"
	defaultFocus       = "Full Body"
	defaultMode        = "straight"
	defaultBg          = "bg-slate-900"
	defaultBorder      = "border-slate-700"
	defaultRest        = 60
	defaultReps        = "8-12"
)

var validModes = map[string]bool{"straight": true, "superset": true, "circuit": true}

var validIcons = map[string]bool{
	"barbell": true, "dumbbell": true, "bodyweight": true, "machine": true,
	"cable": true, "kettlebell": true, "band": true, "cardio": true,
}

// ValidateProgram checks the schema and that the program has exactly days entries
func ValidateProgram(p *Program, days int) error {
	if p == nil {
		return fmt.Errorf("program is nil")
	}
	if err := validate.Struct(p); err != nil {
		return err
	}
	if len(p.Days) != days {
		return fmt.Errorf("program has %d days, want %d", len(p.Days), days)
	}
	return nil
}

// DecodeProgram maps the parsed object onto Program without any coercion
func DecodeProgram(obj map[string]any) (*Program, error) {
	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	var p Program
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// NormalizeProgram coerces a loosely shaped object into a program with exactly
// days entries. Missing days are padded with stubs and extra days dropped;
// every day gets at least one block and every block at least one exercise.
func NormalizeProgram(obj map[string]any, days int) *Program {
	p := &Program{
		Name:        firstString(obj, "name", "title", "programName"),
		Description: firstString(obj, "description", "summary"),
	}
	if p.Name == "" {
		p.Name = defaultProgramName
	}

	rawDays := asObjects(obj["days"])
	if rawDays == nil {
		rawDays = asObjects(obj["workouts"])
	}

	for i := 0; i < days; i++ {
		if i < len(rawDays) {
			p.Days = append(p.Days, normalizeDay(rawDays[i], i))
		} else {
			p.Days = append(p.Days, stubDay(i))
		}
	}
	return p
}

func normalizeDay(obj map[string]any, index int) Day {
	day := Day{
		Title:  firstString(obj, "title", "name", "day"),
		Focus:  firstString(obj, "focus", "muscleGroups", "target"),
		Mode:   strings.ToLower(firstString(obj, "mode", "type")),
		Bg:     firstString(obj, "bg", "background"),
		Border: firstString(obj, "border"),
	}
	if day.Title == "" {
		day.Title = dayTitle(index)
	}
	if day.Focus == "" {
		day.Focus = defaultFocus
	}
	if !validModes[day.Mode] {
		day.Mode = defaultMode
	}
	if day.Bg == "" {
		day.Bg = defaultBg
	}
	if day.Border == "" {
		day.Border = defaultBorder
	}

	rawBlocks := asObjects(obj["blocks"])
	if len(rawBlocks) == 0 {
		// Some answers list exercises directly on the day
		if _, ok := obj["exercises"]; ok {
			rawBlocks = []map[string]any{{"exercises": obj["exercises"], "rest": obj["rest"]}}
		}
	}
	for _, rb := range rawBlocks {
		day.Blocks = append(day.Blocks, normalizeBlock(rb))
	}
	if len(day.Blocks) == 0 {
		day.Blocks = []Block{defaultBlock()}
	}
	return day
}

func normalizeBlock(obj map[string]any) Block {
	block := Block{Rest: defaultRest}
	if rest, ok := firstNumber(obj, "rest", "restSeconds", "rest_seconds"); ok {
		block.Rest = clampRest(rest)
	}

	list, _ := obj["exercises"].([]any)
	for _, item := range list {
		var ex Exercise
		switch v := item.(type) {
		case string:
			ex = Exercise{Name: strings.TrimSpace(v)}
		case map[string]any:
			ex = Exercise{
				Name: firstString(v, "name", "exercise", "title"),
				Reps: coerceReps(v),
				Note: firstString(v, "note", "notes", "cue"),
				Icon: strings.ToLower(firstString(v, "icon", "equipment")),
			}
		}
		if ex.Name == "" {
			continue
		}
		if ex.Reps == "" {
			ex.Reps = defaultReps
		}
		if !validIcons[ex.Icon] {
			ex.Icon = guessIcon(ex.Name)
		}
		block.Exercises = append(block.Exercises, ex)
	}
	if len(block.Exercises) == 0 {
		block.Exercises = []Exercise{defaultExercise()}
	}
	return block
}

// coerceReps accepts "8-12", 10, or sets/reps pairs such as {"sets":3,"reps":10}
func coerceReps(obj map[string]any) string {
	reps := toString(obj["reps"])
	if reps == "" {
		reps = toString(obj["repetitions"])
	}
	if reps == "" {
		if d := toString(obj["duration"]); d != "" {
			reps = d
		}
	}
	if sets, ok := firstNumber(obj, "sets"); ok && sets > 0 && reps != "" && !strings.ContainsAny(reps, "xX×") {
		reps = fmt.Sprintf("%dx%s", int(sets), reps)
	}
	return reps
}

func clampRest(rest float64) int {
	switch {
	case rest < 0:
		return 0
	case rest > 600:
		return 600
	default:
		return int(rest)
	}
}

var iconKeywords = []struct {
	icon  string
	words []string
}{
	{"barbell", []string{"barbell", "deadlift", "bench"}},
	{"dumbbell", []string{"dumbbell", "db"}},
	{"kettlebell", []string{"kettlebell", "kb"}},
	{"cable", []string{"cable"}},
	{"machine", []string{"machine", "smith", "pulldown"}},
	{"band", []string{"band", "banded"}},
	{"cardio", []string{"run", "running", "bike", "cycling", "rowing", "erg", "jog", "sprint", "cardio"}},
}

// guessIcon picks an icon from whole words of the exercise name
func guessIcon(name string) string {
	words := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !(r >= 'a' && r <= 'z')
	})
	for _, kw := range iconKeywords {
		for _, w := range words {
			for _, k := range kw.words {
				if w == k {
					return kw.icon
				}
			}
		}
	}
	return "bodyweight"
}

func dayTitle(index int) string {
	return fmt.Sprintf("Day %d", index+1)
}

func defaultExercise() Exercise {
	return Exercise{Name: "Bodyweight Squat", Reps: "10-15", Icon: "bodyweight"}
}

func defaultBlock() Block {
	return Block{Rest: defaultRest, Exercises: []Exercise{defaultExercise()}}
}

func stubDay(index int) Day {
	return Day{
		Title:  dayTitle(index),
		Focus:  defaultFocus,
		Mode:   defaultMode,
		Bg:     defaultBg,
		Border: defaultBorder,
		Blocks: []Block{defaultBlock()},
	}
}

// FallbackProgram is a fixed full-body template repeated for days entries
func FallbackProgram(days int) *Program {
	p := &Program{
		Name:        "Full Body Foundation",
		Description: "A balanced full-body session to repeat across the week.",
	}
	for i := 0; i < days; i++ {
		p.Days = append(p.Days, Day{
			Title:  fmt.Sprintf("Day %d - Full Body", i+1),
			Focus:  defaultFocus,
			Mode:   defaultMode,
			Bg:     defaultBg,
			Border: defaultBorder,
			Blocks: []Block{
				{Rest: 90, Exercises: []Exercise{
					{Name: "Goblet Squat", Reps: "3x10", Icon: "dumbbell"},
					{Name: "Push-Up", Reps: "3x8-12", Icon: "bodyweight"},
				}},
				{Rest: 90, Exercises: []Exercise{
					{Name: "Dumbbell Row", Reps: "3x10", Icon: "dumbbell"},
					{Name: "Romanian Deadlift", Reps: "3x10", Icon: "dumbbell"},
				}},
				{Rest: 60, Exercises: []Exercise{
					{Name: "Plank", Reps: "3x30s", Icon: "bodyweight", Note: "Keep hips level"},
				}},
			},
		})
	}
	return p
}

// ExerciseNames returns the distinct exercise names in order of first appearance
func (p *Program) ExerciseNames() []string {
	seen := make(map[string]bool)
	var names []string
	for _, day := range p.Days {
		for _, block := range day.Blocks {
			for _, ex := range block.Exercises {
				key := strings.ToLower(strings.TrimSpace(ex.Name))
				if key == "" || seen[key] {
					continue
				}
				seen[key] = true
				names = append(names, ex.Name)
			}
		}
	}
	return names
}

// Annotate sets NormalizedExerciseID on exercises whose name is in ids.
// Names are matched case-insensitively.
func (p *Program) Annotate(ids map[string]string) int {
	lookup := make(map[string]string, len(ids))
	for name, id := range ids {
		lookup[strings.ToLower(strings.TrimSpace(name))] = id
	}

	annotated := 0
	for d := range p.Days {
		for b := range p.Days[d].Blocks {
			exercises := p.Days[d].Blocks[b].Exercises
			for e := range exercises {
				if id, ok := lookup[strings.ToLower(strings.TrimSpace(exercises[e].Name))]; ok && id != "" {
					exercises[e].NormalizedExerciseID = id
					annotated++
				}
			}
		}
	}
	return annotated
}
