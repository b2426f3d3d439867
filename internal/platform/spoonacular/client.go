package spoonacular

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"ctrlcook/internal/recipe"
)

// ErrUpstream is returned for any failure of the external recipe source. The
// upstream error detail is logged here and never surfaced to callers.
var ErrUpstream = errors.New("external recipe source unavailable")

// searchResultCount matches the page size the frontend expects; result
// ranking and pagination are the upstream's concern.
const searchResultCount = 10

// RecipeSummary is one hit of a text search.
type RecipeSummary struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Image string `json:"image"`
}

// RecipeDetail is a full external recipe, with ingredients canonicalized to
// free-text lines.
type RecipeDetail struct {
	ID           string             `json:"id"`
	Title        string             `json:"title"`
	Image        string             `json:"image"`
	Ingredients  []DetailIngredient `json:"ingredients"`
	Instructions string             `json:"instructions"`
}

// DetailIngredient keeps both the full original line and the bare name so the
// frontend can render either.
type DetailIngredient struct {
	Original string `json:"original"`
	Name     string `json:"name"`
}

// Client is a thin pass-through to the Spoonacular API.
type Client struct {
	client *resty.Client
	apiKey string
	logger *zap.Logger
}

// NewClient creates a Spoonacular client.
func NewClient(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *Client {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout)

	return &Client{
		client: client,
		apiKey: apiKey,
		logger: logger,
	}
}

// Search runs a free-text recipe search and returns summaries.
func (c *Client) Search(ctx context.Context, query string) ([]RecipeSummary, error) {
	var result struct {
		Results []struct {
			ID    int64  `json:"id"`
			Title string `json:"title"`
			Image string `json:"image"`
		} `json:"results"`
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"apiKey":          c.apiKey,
			"query":           query,
			"number":          strconv.Itoa(searchResultCount),
			"fillIngredients": "true",
		}).
		SetResult(&result).
		Get("/recipes/complexSearch")
	if err != nil {
		c.logger.Error("spoonacular search request failed", zap.Error(err))
		return nil, ErrUpstream
	}
	if resp.StatusCode() != http.StatusOK {
		c.logger.Error("spoonacular search returned non-200",
			zap.Int("status", resp.StatusCode()),
			zap.String("body", resp.String()),
		)
		return nil, ErrUpstream
	}

	summaries := make([]RecipeSummary, 0, len(result.Results))
	for _, r := range result.Results {
		summaries = append(summaries, RecipeSummary{
			ID:    strconv.FormatInt(r.ID, 10),
			Title: r.Title,
			Image: r.Image,
		})
	}
	return summaries, nil
}

// GetRecipe fetches full recipe information for an external id.
func (c *Client) GetRecipe(ctx context.Context, id string) (*RecipeDetail, error) {
	var result struct {
		ID                  int64  `json:"id"`
		Title               string `json:"title"`
		Image               string `json:"image"`
		ExtendedIngredients []struct {
			Original string `json:"original"`
			Name     string `json:"name"`
		} `json:"extendedIngredients"`
		Instructions string `json:"instructions"`
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"apiKey":           c.apiKey,
			"includeNutrition": "false",
		}).
		SetResult(&result).
		Get(fmt.Sprintf("/recipes/%s/information", id))
	if err != nil {
		c.logger.Error("spoonacular detail request failed", zap.Error(err), zap.String("recipe_id", id))
		return nil, ErrUpstream
	}
	if resp.StatusCode() != http.StatusOK {
		c.logger.Error("spoonacular detail returned non-200",
			zap.Int("status", resp.StatusCode()),
			zap.String("recipe_id", id),
		)
		return nil, ErrUpstream
	}

	ingredients := make([]DetailIngredient, 0, len(result.ExtendedIngredients))
	for _, ing := range result.ExtendedIngredients {
		name := ing.Name
		if name == "" {
			name = recipe.NormalizeIngredient(ing.Original)
		}
		ingredients = append(ingredients, DetailIngredient{
			Original: ing.Original,
			Name:     name,
		})
	}

	return &RecipeDetail{
		ID:           strconv.FormatInt(result.ID, 10),
		Title:        result.Title,
		Image:        result.Image,
		Ingredients:  ingredients,
		Instructions: result.Instructions,
	}, nil
}
