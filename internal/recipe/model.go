package recipe

import (
	"encoding/json"
	"time"
)

// CustomizedRecipe pairs an externally sourced recipe with a user's edits and
// the derived substitution map.
type CustomizedRecipe struct {
	ID                  string            `json:"id" db:"id"`
	OwnerID             string            `json:"-" db:"owner_id"`
	ExternalID          string            `json:"externalId" db:"external_id"`
	Title               string            `json:"title" db:"title"`
	ImageURL            string            `json:"imageUrl" db:"image_url"`
	OriginalIngredients []string          `json:"originalIngredients"`
	CustomIngredients   []string          `json:"customIngredients"`
	Substitutions       map[string]string `json:"substitutions"`
	Instructions        string            `json:"instructions" db:"instructions"`
	CreatedAt           time.Time         `json:"createdAt" db:"created_at"`
	UpdatedAt           time.Time         `json:"updatedAt" db:"updated_at"`
}

// Ingredient is a single entry of an ingredient list. Recipe sources are not
// consistent about the wire shape: some send plain strings, others send
// objects like {"original": "2 cups milk", "name": "milk"}. Both forms decode
// to the free-text line, preferring the full original text over the bare name.
type Ingredient string

// UnmarshalJSON implements the json.Unmarshaler interface for Ingredient.
func (i *Ingredient) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*i = Ingredient(s)
		return nil
	}

	var obj struct {
		Original string `json:"original"`
		Name     string `json:"name"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if obj.Original != "" {
		*i = Ingredient(obj.Original)
	} else {
		*i = Ingredient(obj.Name)
	}
	return nil
}

// IngredientStrings converts a decoded ingredient list to plain strings.
func IngredientStrings(ingredients []Ingredient) []string {
	out := make([]string, len(ingredients))
	for i, ing := range ingredients {
		out[i] = string(ing)
	}
	return out
}
