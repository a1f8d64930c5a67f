package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// macroTolerance is the allowed gap between a total and the ingredient sum
const macroTolerance = 0.05

// NutritionLog is an estimated meal breakdown
type NutritionLog struct {
	Food        string       `json:"food" validate:"required"`
	Calories    float64      `json:"calories" validate:"gte=0"`
	Protein     float64      `json:"protein" validate:"gte=0"`
	Carbs       float64      `json:"carbs" validate:"gte=0"`
	Fats        float64      `json:"fats" validate:"gte=0"`
	Ingredients []Ingredient `json:"ingredients" validate:"dive"`
	MealType    string       `json:"mealType" validate:"required,oneof=breakfast lunch dinner snack"`
}

// Ingredient is one itemized component of a meal
type Ingredient struct {
	Name     string  `json:"name" validate:"required"`
	Calories float64 `json:"calories" validate:"gte=0"`
	Protein  float64 `json:"protein" validate:"gte=0"`
	Carbs    float64 `json:"carbs" validate:"gte=0"`
	Fats     float64 `json:"fats" validate:"gte=0"`
}

const defaultMealType = "snack"

var validMealTypes = map[string]bool{"breakfast": true, "lunch": true, "dinner": true, "snack": true}

// Alternate spellings models use for each macro
var (
	calorieKeys = []string{"calories", "cal", "kcal", "energy"}
	proteinKeys = []string{"protein", "p", "proteins"}
	carbKeys    = []string{"carbs", "c", "carbohydrates", "carb"}
	fatKeys     = []string{"fats", "f", "fat"}
)

// ValidateNutrition checks the schema and that totals match the ingredient sums
func ValidateNutrition(n *NutritionLog) error {
	if n == nil {
		return fmt.Errorf("nutrition log is nil")
	}
	if err := validate.Struct(n); err != nil {
		return err
	}
	if len(n.Ingredients) == 0 {
		return nil
	}

	var sum Ingredient
	for _, ing := range n.Ingredients {
		sum.Calories += ing.Calories
		sum.Protein += ing.Protein
		sum.Carbs += ing.Carbs
		sum.Fats += ing.Fats
	}
	checks := []struct {
		name       string
		total, sum float64
	}{
		{"calories", n.Calories, sum.Calories},
		{"protein", n.Protein, sum.Protein},
		{"carbs", n.Carbs, sum.Carbs},
		{"fats", n.Fats, sum.Fats},
	}
	for _, c := range checks {
		if math.Abs(c.total-c.sum) > macroTolerance {
			return fmt.Errorf("%s total %.2f does not match ingredient sum %.2f", c.name, c.total, c.sum)
		}
	}
	return nil
}

// canonicalMacroKeys must all be present for a strict decode. Anything else
// (including alternate spellings) is left to NormalizeNutrition.
var canonicalMacroKeys = []string{"calories", "protein", "carbs", "fats"}

// DecodeNutrition maps the parsed object onto NutritionLog without any coercion.
// It fails when a macro key is missing at the top level or on any ingredient.
func DecodeNutrition(obj map[string]any) (*NutritionLog, error) {
	if err := requireMacroKeys(obj, "meal"); err != nil {
		return nil, err
	}
	if list, ok := obj["ingredients"].([]any); ok {
		for i, item := range list {
			ing, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("ingredient %d is not an object", i)
			}
			if err := requireMacroKeys(ing, fmt.Sprintf("ingredient %d", i)); err != nil {
				return nil, err
			}
		}
	}

	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	var n NutritionLog
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

func requireMacroKeys(obj map[string]any, where string) error {
	for _, key := range canonicalMacroKeys {
		if _, ok := obj[key]; !ok {
			return fmt.Errorf("%s: missing %q", where, key)
		}
	}
	return nil
}

// NormalizeNutrition coalesces alternate key spellings over an ingredients or
// meals list. When items are present the totals are their sums; otherwise the
// top-level values are used, defaulting to zero.
func NormalizeNutrition(obj map[string]any) *NutritionLog {
	n := &NutritionLog{
		Food:     firstString(obj, "food", "name", "meal", "description", "title"),
		MealType: strings.ToLower(firstString(obj, "mealType", "meal_type", "type")),
	}
	if !validMealTypes[n.MealType] {
		n.MealType = defaultMealType
	}

	items := asObjects(obj["ingredients"])
	if len(items) == 0 {
		items = asObjects(obj["meals"])
	}
	if len(items) == 0 {
		items = asObjects(obj["items"])
	}

	if len(items) > 0 {
		names := make([]string, 0, len(items))
		for i, item := range items {
			ing := Ingredient{
				Name:     firstString(item, "name", "food", "item", "ingredient"),
				Calories: macro(item, calorieKeys),
				Protein:  macro(item, proteinKeys),
				Carbs:    macro(item, carbKeys),
				Fats:     macro(item, fatKeys),
			}
			if ing.Name == "" {
				ing.Name = fmt.Sprintf("Item %d", i+1)
			}
			names = append(names, ing.Name)
			n.Ingredients = append(n.Ingredients, ing)

			n.Calories += ing.Calories
			n.Protein += ing.Protein
			n.Carbs += ing.Carbs
			n.Fats += ing.Fats
		}
		n.Calories = round1(n.Calories)
		n.Protein = round1(n.Protein)
		n.Carbs = round1(n.Carbs)
		n.Fats = round1(n.Fats)
		if n.Food == "" {
			n.Food = strings.Join(names, ", ")
		}
	} else {
		n.Calories = macro(obj, calorieKeys)
		n.Protein = macro(obj, proteinKeys)
		n.Carbs = macro(obj, carbKeys)
		n.Fats = macro(obj, fatKeys)
	}

	if n.Food == "" {
		n.Food = "Meal"
	}
	return n
}

// macro reads one macro value, rounded to one decimal and floored at zero
func macro(obj map[string]any, keys []string) float64 {
	v, ok := firstNumber(obj, keys...)
	if !ok || v < 0 {
		return 0
	}
	return round1(v)
}
