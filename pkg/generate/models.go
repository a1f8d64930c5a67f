package generate

import (
	"github.com/mihaimyh/fitgen/pkg/quota"
	"github.com/mihaimyh/fitgen/pkg/tasks"
)

// Models names the model variant used for each kind of work
type Models struct {
	// Primary handles program, nutrition and text generation
	Primary string
	// Fast handles low-stakes sub-tasks such as catalog mapping
	Fast string
	// Vision reads meal photos for free users
	Vision string
	// VisionPro reads meal photos for paying users
	VisionPro string
}

// DefaultModels returns the stock Gemini model names
func DefaultModels() Models {
	return Models{
		Primary:   "gemini-2.5-flash",
		Fast:      "gemini-2.5-flash-lite",
		Vision:    "gemini-2.5-flash",
		VisionPro: "gemini-2.5-pro",
	}
}

// For picks the model for a task run on behalf of a user on plan
func (m Models) For(id tasks.ID, plan quota.Plan) string {
	switch id {
	case tasks.ExerciseMapping:
		return m.Fast
	case tasks.NutritionPhoto:
		if plan == quota.PlanPro {
			return m.VisionPro
		}
		return m.Vision
	default:
		return m.Primary
	}
}
