package tasks

import "github.com/mihaimyh/fitgen/pkg/quota"

// RoutineProgramTask asks for a multi-day training program
type RoutineProgramTask struct {
	TotalDays      int      `json:"totalDays" validate:"required,min=1,max=7"`
	Goal           string   `json:"goal" validate:"max=200"`
	Level          string   `json:"level" validate:"omitempty,oneof=beginner intermediate advanced"`
	Equipment      []string `json:"equipment" validate:"max=20,dive,max=60"`
	SessionMinutes int      `json:"sessionMinutes" validate:"omitempty,min=10,max=180"`
	FocusAreas     []string `json:"focusAreas" validate:"max=10,dive,max=60"`
	Notes          string   `json:"notes" validate:"max=1000"`
	Language       string   `json:"language" validate:"max=20"`
}

func (t *RoutineProgramTask) ID() ID                   { return RoutineProgram }
func (t *RoutineProgramTask) Category() quota.Category { return quota.CategoryRoutine }
func (t *RoutineProgramTask) Output() Output           { return OutputProgram }

// ExerciseSwapTask asks for alternatives to one exercise
type ExerciseSwapTask struct {
	Exercise  string   `json:"exercise" validate:"required,max=120"`
	Reason    string   `json:"reason" validate:"max=500"`
	Equipment []string `json:"equipment" validate:"max=20,dive,max=60"`
	Language  string   `json:"language" validate:"max=20"`
}

func (t *ExerciseSwapTask) ID() ID                   { return ExerciseSwap }
func (t *ExerciseSwapTask) Category() quota.Category { return quota.CategoryRoutine }
func (t *ExerciseSwapTask) Output() Output           { return OutputText }

// NutritionParseTask turns a free-text meal description into a nutrition log
type NutritionParseTask struct {
	Description string `json:"description" validate:"required,max=2000"`
	MealType    string `json:"mealType" validate:"omitempty,oneof=breakfast lunch dinner snack"`
	Language    string `json:"language" validate:"max=20"`
}

func (t *NutritionParseTask) ID() ID                   { return NutritionParse }
func (t *NutritionParseTask) Category() quota.Category { return quota.CategoryNutrition }
func (t *NutritionParseTask) Output() Output           { return OutputNutrition }

// NutritionPhotoTask estimates a nutrition log from a meal photo
type NutritionPhotoTask struct {
	Description string `json:"description" validate:"max=2000"`
	MealType    string `json:"mealType" validate:"omitempty,oneof=breakfast lunch dinner snack"`
	Language    string `json:"language" validate:"max=20"`
}

func (t *NutritionPhotoTask) ID() ID                   { return NutritionPhoto }
func (t *NutritionPhotoTask) Category() quota.Category { return quota.CategoryNutrition }
func (t *NutritionPhotoTask) Output() Output           { return OutputNutrition }
func (t *NutritionPhotoTask) RequiresImage() bool      { return true }

// ChatTurn is one prior message in a coach conversation
type ChatTurn struct {
	Role string `json:"role" validate:"required,oneof=user model"`
	Text string `json:"text" validate:"required,max=4000"`
}

// CoachChatTask is one turn of the coaching conversation
type CoachChatTask struct {
	Message  string     `json:"message" validate:"required,max=4000"`
	History  []ChatTurn `json:"history" validate:"max=30,dive"`
	Profile  string     `json:"profile" validate:"max=2000"`
	Language string     `json:"language" validate:"max=20"`
}

func (t *CoachChatTask) ID() ID                   { return CoachChat }
func (t *CoachChatTask) Category() quota.Category { return quota.CategoryCoach }
func (t *CoachChatTask) Output() Output           { return OutputText }

// WorkoutSummary is one completed workout fed into an analysis
type WorkoutSummary struct {
	Date            string  `json:"date" validate:"required,max=40"`
	Title           string  `json:"title" validate:"max=120"`
	DurationMinutes int     `json:"durationMinutes" validate:"min=0"`
	Sets            int     `json:"sets" validate:"min=0"`
	VolumeKg        float64 `json:"volumeKg" validate:"min=0"`
}

// WorkoutAnalysisTask reviews recent training history
type WorkoutAnalysisTask struct {
	Workouts []WorkoutSummary `json:"workouts" validate:"required,min=1,max=100,dive"`
	Goal     string           `json:"goal" validate:"max=200"`
	Language string           `json:"language" validate:"max=20"`
}

func (t *WorkoutAnalysisTask) ID() ID                   { return WorkoutAnalysis }
func (t *WorkoutAnalysisTask) Category() quota.Category { return quota.CategoryAnalysis }
func (t *WorkoutAnalysisTask) Output() Output           { return OutputText }

// MetricPoint is one body or performance measurement
type MetricPoint struct {
	Name  string  `json:"name" validate:"required,max=60"`
	Date  string  `json:"date" validate:"required,max=40"`
	Value float64 `json:"value"`
}

// ProgressInsightsTask summarizes measurement trends
type ProgressInsightsTask struct {
	Metrics  []MetricPoint `json:"metrics" validate:"required,min=1,max=500,dive"`
	Goal     string        `json:"goal" validate:"max=200"`
	Language string        `json:"language" validate:"max=20"`
}

func (t *ProgressInsightsTask) ID() ID                   { return ProgressInsights }
func (t *ProgressInsightsTask) Category() quota.Category { return quota.CategoryAnalysis }
func (t *ProgressInsightsTask) Output() Output           { return OutputText }

// CatalogCandidate is one catalog entry offered to the mapping task
type CatalogCandidate struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ExerciseMappingTask maps free-form exercise names to catalog ids.
// It has no quota category and is built directly, never decoded.
type ExerciseMappingTask struct {
	Names   []string
	Catalog []CatalogCandidate
}

func (t *ExerciseMappingTask) ID() ID                   { return ExerciseMapping }
func (t *ExerciseMappingTask) Category() quota.Category { return "" }
func (t *ExerciseMappingTask) Output() Output           { return OutputMapping }
