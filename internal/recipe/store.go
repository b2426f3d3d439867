package recipe

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// ErrNotFound is returned when a recipe id does not resolve for the calling
// owner. A row owned by somebody else and a row that does not exist are
// deliberately indistinguishable so that existence never leaks across owners.
var ErrNotFound = errors.New("recipe not found")

// UpsertParams carries the full replaceable field set for a save. The
// substitution map is always computed by the caller from the two ingredient
// lists, never taken from a client.
type UpsertParams struct {
	ExternalID          string
	Title               string
	ImageURL            string
	OriginalIngredients []string
	CustomIngredients   []string
	Substitutions       map[string]string
	Instructions        string
}

// UpdateParams carries the editable fields of an existing recipe. The original
// ingredient list is fixed at save time and is not editable here.
type UpdateParams struct {
	Title             string
	ImageURL          string
	CustomIngredients []string
	Substitutions     map[string]string
	Instructions      string
}

// Store defines the interface for customized recipe persistence.
type Store interface {
	UpsertRecipe(ctx context.Context, ownerID string, params UpsertParams) (*CustomizedRecipe, error)
	ListRecipes(ctx context.Context, ownerID string) ([]*CustomizedRecipe, error)
	GetRecipe(ctx context.Context, ownerID, id string) (*CustomizedRecipe, error)
	UpdateRecipe(ctx context.Context, ownerID, id string, params UpdateParams) (*CustomizedRecipe, error)
	DeleteRecipe(ctx context.Context, ownerID, id string) error
}

// PostgresStore implements the Store interface for PostgreSQL.
type PostgresStore struct {
	db *sqlx.DB
}

const recipeColumns = `id, owner_id, external_id, title, image_url, original_ingredients, custom_ingredients, substitutions, instructions, created_at, updated_at`

// NewPostgresStore connects to the database and ensures the recipes schema
// exists.
func NewPostgresStore(db *sqlx.DB) (*PostgresStore, error) {
	schema := `
	CREATE TABLE IF NOT EXISTS custom_recipes (
		id UUID PRIMARY KEY,
		owner_id UUID NOT NULL,
		external_id TEXT NOT NULL,
		title TEXT NOT NULL,
		image_url TEXT NOT NULL DEFAULT '',
		original_ingredients JSONB NOT NULL,
		custom_ingredients JSONB NOT NULL,
		substitutions JSONB NOT NULL,
		instructions TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (owner_id, external_id)
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create custom_recipes table: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// UpsertRecipe saves a customized recipe keyed by (owner, external id). The
// whole save is a single INSERT ... ON CONFLICT DO UPDATE statement so that
// two concurrent saves of the same external recipe can never produce two rows
// or a half-updated one.
func (s *PostgresStore) UpsertRecipe(ctx context.Context, ownerID string, params UpsertParams) (*CustomizedRecipe, error) {
	originalJSON, customJSON, subsJSON, err := marshalRecipeFields(params.OriginalIngredients, params.CustomIngredients, params.Substitutions)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRowxContext(ctx,
		`INSERT INTO custom_recipes (id, owner_id, external_id, title, image_url, original_ingredients, custom_ingredients, substitutions, instructions)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (owner_id, external_id) DO UPDATE SET
			title = EXCLUDED.title,
			image_url = EXCLUDED.image_url,
			original_ingredients = EXCLUDED.original_ingredients,
			custom_ingredients = EXCLUDED.custom_ingredients,
			substitutions = EXCLUDED.substitutions,
			instructions = EXCLUDED.instructions,
			updated_at = now()
		 RETURNING `+recipeColumns,
		uuid.New().String(),
		ownerID,
		params.ExternalID,
		params.Title,
		params.ImageURL,
		originalJSON,
		customJSON,
		subsJSON,
		params.Instructions,
	)

	saved, err := scanRecipe(row)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert recipe: %w", err)
	}
	return saved, nil
}

// ListRecipes returns the calling owner's recipes, newest first.
func (s *PostgresStore) ListRecipes(ctx context.Context, ownerID string) ([]*CustomizedRecipe, error) {
	rows, err := s.db.QueryxContext(ctx,
		`SELECT `+recipeColumns+` FROM custom_recipes WHERE owner_id = $1 ORDER BY updated_at DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list recipes: %w", err)
	}
	defer rows.Close()

	recipes := make([]*CustomizedRecipe, 0)
	for rows.Next() {
		r, err := scanRecipe(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recipe row: %w", err)
		}
		recipes = append(recipes, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return recipes, nil
}

// GetRecipe fetches one recipe by id, scoped to the owner.
func (s *PostgresStore) GetRecipe(ctx context.Context, ownerID, id string) (*CustomizedRecipe, error) {
	row := s.db.QueryRowxContext(ctx,
		`SELECT `+recipeColumns+` FROM custom_recipes WHERE id = $1 AND owner_id = $2`,
		id, ownerID,
	)

	r, err := scanRecipe(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get recipe: %w", err)
	}
	return r, nil
}

// UpdateRecipe replaces the editable fields of an owned recipe in a single
// statement and bumps updated_at.
func (s *PostgresStore) UpdateRecipe(ctx context.Context, ownerID, id string, params UpdateParams) (*CustomizedRecipe, error) {
	customJSON, err := json.Marshal(params.CustomIngredients)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal custom ingredients: %w", err)
	}
	subsJSON, err := json.Marshal(params.Substitutions)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal substitutions: %w", err)
	}

	row := s.db.QueryRowxContext(ctx,
		`UPDATE custom_recipes SET
			title = $1,
			image_url = $2,
			custom_ingredients = $3,
			substitutions = $4,
			instructions = $5,
			updated_at = now()
		 WHERE id = $6 AND owner_id = $7
		 RETURNING `+recipeColumns,
		params.Title,
		params.ImageURL,
		customJSON,
		subsJSON,
		params.Instructions,
		id,
		ownerID,
	)

	r, err := scanRecipe(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update recipe: %w", err)
	}
	return r, nil
}

// DeleteRecipe removes an owned recipe.
func (s *PostgresStore) DeleteRecipe(ctx context.Context, ownerID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM custom_recipes WHERE id = $1 AND owner_id = $2`,
		id, ownerID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete recipe: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func marshalRecipeFields(original, custom []string, subs map[string]string) ([]byte, []byte, []byte, error) {
	if original == nil {
		original = []string{}
	}
	if custom == nil {
		custom = []string{}
	}
	if subs == nil {
		subs = map[string]string{}
	}

	originalJSON, err := json.Marshal(original)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal original ingredients: %w", err)
	}
	customJSON, err := json.Marshal(custom)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal custom ingredients: %w", err)
	}
	subsJSON, err := json.Marshal(subs)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal substitutions: %w", err)
	}
	return originalJSON, customJSON, subsJSON, nil
}

// rowScanner covers both *sqlx.Row and *sqlx.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecipe(row rowScanner) (*CustomizedRecipe, error) {
	var r CustomizedRecipe
	var originalJSON, customJSON, subsJSON []byte

	err := row.Scan(
		&r.ID,
		&r.OwnerID,
		&r.ExternalID,
		&r.Title,
		&r.ImageURL,
		&originalJSON,
		&customJSON,
		&subsJSON,
		&r.Instructions,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(originalJSON, &r.OriginalIngredients); err != nil {
		return nil, fmt.Errorf("failed to unmarshal original ingredients: %w", err)
	}
	if err := json.Unmarshal(customJSON, &r.CustomIngredients); err != nil {
		return nil, fmt.Errorf("failed to unmarshal custom ingredients: %w", err)
	}
	if err := json.Unmarshal(subsJSON, &r.Substitutions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal substitutions: %w", err)
	}

	return &r, nil
}
