// Package tasks defines the generation tasks a client can request.
//
// Each task identifier maps to one concrete type carrying its own typed
// payload. Decode turns the wire pair (task, payload) into that type and
// validates it before any quota is touched.
package tasks

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/mihaimyh/fitgen/pkg/quota"
)

// ID identifies a generation task on the wire
type ID string

const (
	RoutineProgram   ID = "routine_program"
	ExerciseSwap     ID = "exercise_swap"
	NutritionParse   ID = "nutrition_parse"
	NutritionPhoto   ID = "nutrition_photo"
	CoachChat        ID = "coach_chat"
	WorkoutAnalysis  ID = "workout_analysis"
	ProgressInsights ID = "progress_insights"

	// ExerciseMapping is issued internally by the catalog pass and is never
	// accepted from clients.
	ExerciseMapping ID = "exercise_mapping"
)

// Output describes the shape of text the model is expected to return
type Output int

const (
	OutputText Output = iota
	OutputProgram
	OutputNutrition
	OutputMapping
)

// JSON reports whether the model must answer with a JSON document
func (o Output) JSON() bool {
	return o != OutputText
}

var (
	// ErrUnknownTask is returned for task identifiers no variant handles
	ErrUnknownTask = errors.New("unknown task")

	// ErrInvalidPayload is returned when the payload cannot be decoded or fails validation
	ErrInvalidPayload = errors.New("invalid task payload")

	// ErrImageRequired is returned when an image task arrives without an image
	ErrImageRequired = errors.New("image is required for this task")
)

// Prompt is the instruction pair sent to the model
type Prompt struct {
	System string
	User   string
}

// Task is one decoded, validated generation request
type Task interface {
	ID() ID
	Category() quota.Category
	Output() Output
	Prompt() Prompt
}

// ImageTask is implemented by tasks that require an inline image
type ImageTask interface {
	Task
	RequiresImage() bool
}

// ValidationError lists payload fields that failed validation
type ValidationError struct {
	Task   ID
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, field+" "+msg)
	}
	return fmt.Sprintf("%s: %s", e.Task, strings.Join(parts, ", "))
}

// Unwrap lets callers match ErrInvalidPayload
func (e *ValidationError) Unwrap() error {
	return ErrInvalidPayload
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

// constructors lists the client-callable variants
var constructors = map[ID]func() Task{
	RoutineProgram:   func() Task { return &RoutineProgramTask{} },
	ExerciseSwap:     func() Task { return &ExerciseSwapTask{} },
	NutritionParse:   func() Task { return &NutritionParseTask{} },
	NutritionPhoto:   func() Task { return &NutritionPhotoTask{} },
	CoachChat:        func() Task { return &CoachChatTask{} },
	WorkoutAnalysis:  func() Task { return &WorkoutAnalysisTask{} },
	ProgressInsights: func() Task { return &ProgressInsightsTask{} },
}

// Known reports whether id is a client-callable task
func Known(id ID) bool {
	_, ok := constructors[id]
	return ok
}

// Decode builds the task variant for id from its JSON payload.
// hasImage tells image tasks whether the request carried an image.
func Decode(id ID, payload json.RawMessage, hasImage bool) (Task, error) {
	newTask, ok := constructors[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTask, id)
	}

	task := newTask()
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 || bytes.Equal(payload, []byte("null")) {
		payload = []byte("{}")
	}
	if err := json.Unmarshal(payload, task); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	if err := validate.Struct(task); err != nil {
		return nil, formatValidationErrors(id, err)
	}

	if it, ok := task.(ImageTask); ok && it.RequiresImage() && !hasImage {
		return nil, ErrImageRequired
	}

	return task, nil
}

func formatValidationErrors(id ID, err error) error {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	fields := make(map[string]string, len(errs))
	for _, fe := range errs {
		fields[fieldPath(fe)] = validationMessage(fe)
	}
	return &ValidationError{Task: id, Fields: fields}
}

// fieldPath drops the struct type from the namespace: "totalDays", "history[0].role"
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	}
	return "is invalid"
}
