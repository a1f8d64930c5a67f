package tasks

import (
	"encoding/json"
	"fmt"
	"strings"
)

const programSchema = `{
  "name": string,
  "description": string,
  "days": [{
    "title": string,
    "focus": string,
    "mode": "straight" | "superset" | "circuit",
    "bg": string,
    "border": string,
    "blocks": [{
      "rest": number (seconds, 0-600),
      "exercises": [{
        "name": string,
        "reps": string (e.g. "8-12"),
        "note": string (optional),
        "icon": "barbell" | "dumbbell" | "bodyweight" | "machine" | "cable" | "kettlebell" | "band" | "cardio"
      }]
    }]
  }]
}`

const nutritionSchema = `{
  "food": string,
  "calories": number,
  "protein": number,
  "carbs": number,
  "fats": number,
  "mealType": "breakfast" | "lunch" | "dinner" | "snack",
  "ingredients": [{ "name": string, "calories": number, "protein": number, "carbs": number, "fats": number }]
}`

const coachPersona = "You are an experienced strength and conditioning coach. " +
	"Be concise, practical and encouraging. Never give medical diagnoses."

func languageLine(lang string) string {
	if strings.TrimSpace(lang) == "" {
		return ""
	}
	return fmt.Sprintf("\nAnswer in %s.", lang)
}

func bullet(label, value string) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	return fmt.Sprintf("- %s: %s\n", label, value)
}

func bulletList(label string, values []string) string {
	if len(values) == 0 {
		return ""
	}
	return bullet(label, strings.Join(values, ", "))
}

// Prompt implements Task
func (t *RoutineProgramTask) Prompt() Prompt {
	var b strings.Builder
	fmt.Fprintf(&b, "Create a training program with exactly %d days.\n", t.TotalDays)
	b.WriteString(bullet("Goal", t.Goal))
	b.WriteString(bullet("Level", t.Level))
	b.WriteString(bulletList("Available equipment", t.Equipment))
	if t.SessionMinutes > 0 {
		b.WriteString(bullet("Session length", fmt.Sprintf("%d minutes", t.SessionMinutes)))
	}
	b.WriteString(bulletList("Focus areas", t.FocusAreas))
	b.WriteString(bullet("Notes", t.Notes))

	return Prompt{
		System: coachPersona + "\nReturn only a JSON object matching this schema, no prose:\n" +
			programSchema + languageLine(t.Language),
		User: b.String(),
	}
}

// Prompt implements Task
func (t *ExerciseSwapTask) Prompt() Prompt {
	var b strings.Builder
	fmt.Fprintf(&b, "Suggest three alternatives to %q that train the same muscles.\n", t.Exercise)
	b.WriteString(bullet("Reason for swapping", t.Reason))
	b.WriteString(bulletList("Available equipment", t.Equipment))
	return Prompt{
		System: coachPersona + "\nReply with a short list, one line per exercise with a brief cue." +
			languageLine(t.Language),
		User: b.String(),
	}
}

func nutritionSystem(lang string) string {
	return "You are a nutritionist estimating macronutrients. Use grams for protein, carbs and fats " +
		"and kcal for calories. Return only a JSON object matching this schema, no prose:\n" +
		nutritionSchema + languageLine(lang)
}

// Prompt implements Task
func (t *NutritionParseTask) Prompt() Prompt {
	var b strings.Builder
	fmt.Fprintf(&b, "Estimate the nutrition of this meal: %s\n", t.Description)
	b.WriteString(bullet("Meal type", t.MealType))
	return Prompt{System: nutritionSystem(t.Language), User: b.String()}
}

// Prompt implements Task
func (t *NutritionPhotoTask) Prompt() Prompt {
	var b strings.Builder
	b.WriteString("Identify the food in the attached photo and estimate its nutrition.\n")
	b.WriteString(bullet("User description", t.Description))
	b.WriteString(bullet("Meal type", t.MealType))
	return Prompt{System: nutritionSystem(t.Language), User: b.String()}
}

// Prompt implements Task
func (t *CoachChatTask) Prompt() Prompt {
	var b strings.Builder
	if t.Profile != "" {
		fmt.Fprintf(&b, "Athlete profile: %s\n\n", t.Profile)
	}
	if len(t.History) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, turn := range t.History {
			role := "Athlete"
			if turn.Role == "model" {
				role = "Coach"
			}
			fmt.Fprintf(&b, "%s: %s\n", role, turn.Text)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Athlete: %s", t.Message)
	return Prompt{System: coachPersona + languageLine(t.Language), User: b.String()}
}

// Prompt implements Task
func (t *WorkoutAnalysisTask) Prompt() Prompt {
	var b strings.Builder
	b.WriteString("Analyze these recent workouts and point out trends, imbalances and next steps.\n")
	b.WriteString(bullet("Goal", t.Goal))
	for _, w := range t.Workouts {
		fmt.Fprintf(&b, "- %s %s: %d min, %d sets, %.1f kg volume\n",
			w.Date, w.Title, w.DurationMinutes, w.Sets, w.VolumeKg)
	}
	return Prompt{System: coachPersona + languageLine(t.Language), User: b.String()}
}

// Prompt implements Task
func (t *ProgressInsightsTask) Prompt() Prompt {
	var b strings.Builder
	b.WriteString("Summarize the progress shown by these measurements in a few short paragraphs.\n")
	b.WriteString(bullet("Goal", t.Goal))
	for _, m := range t.Metrics {
		fmt.Fprintf(&b, "- %s %s: %g\n", m.Date, m.Name, m.Value)
	}
	return Prompt{System: coachPersona + languageLine(t.Language), User: b.String()}
}

// Prompt implements Task
func (t *ExerciseMappingTask) Prompt() Prompt {
	names, _ := json.Marshal(t.Names)
	catalog, _ := json.Marshal(t.Catalog)
	return Prompt{
		System: "You map exercise names to a fixed catalog. Return only a JSON object whose keys are " +
			"the input names and whose values are catalog ids. Omit names with no good match.",
		User: fmt.Sprintf("Names: %s\nCatalog: %s", names, catalog),
	}
}
