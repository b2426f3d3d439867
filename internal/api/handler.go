package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"ctrlcook/internal/auth"
	"ctrlcook/internal/platform/spoonacular"
	"ctrlcook/internal/recipe"
	"ctrlcook/internal/user"
)

// upstreamTimeout bounds calls to the external recipe source.
const upstreamTimeout = 15 * time.Second

// RecipeSource defines the interface to the external recipe API.
type RecipeSource interface {
	Search(ctx context.Context, query string) ([]spoonacular.RecipeSummary, error)
	GetRecipe(ctx context.Context, id string) (*spoonacular.RecipeDetail, error)
}

// SearchCache defines the interface for the search result cache.
type SearchCache interface {
	Get(ctx context.Context, query string) ([]spoonacular.RecipeSummary, bool)
	Set(ctx context.Context, query string, summaries []spoonacular.RecipeSummary) error
}

// Handler handles HTTP requests.
type Handler struct {
	Recipes recipe.Store
	Users   user.Store
	Source  RecipeSource
	Cache   SearchCache // nil when caching is disabled
	Tokens  *auth.Maker
	Logger  *zap.Logger
}

// NewHandler creates a new Handler.
func NewHandler(recipes recipe.Store, users user.Store, source RecipeSource, cache SearchCache, tokens *auth.Maker, logger *zap.Logger) *Handler {
	return &Handler{
		Recipes: recipes,
		Users:   users,
		Source:  source,
		Cache:   cache,
		Tokens:  tokens,
		Logger:  logger,
	}
}

type registerRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type authResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Token    string `json:"token"`
}

// Register creates an account and returns a signed access token.
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username, email and password (min 8 chars) are required"})
		return
	}

	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		h.Logger.Error("failed to hash password", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create account"})
		return
	}

	u, err := h.Users.CreateUser(c.Request.Context(), req.Username, req.Email, hashed)
	if err != nil {
		if errors.Is(err, user.ErrDuplicate) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "username or email already in use"})
			return
		}
		h.Logger.Error("failed to create user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create account"})
		return
	}

	token, err := h.Tokens.CreateToken(u.ID)
	if err != nil {
		h.Logger.Error("failed to sign token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create account"})
		return
	}

	c.JSON(http.StatusCreated, authResponse{ID: u.ID, Username: u.Username, Email: u.Email, Token: token})
}

// Login verifies credentials and returns a signed access token.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		return
	}

	u, err := h.Users.GetUserByEmail(c.Request.Context(), req.Email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		h.Logger.Error("failed to look up user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	if err := auth.CheckPassword(req.Password, u.PasswordHash); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := h.Tokens.CreateToken(u.ID)
	if err != nil {
		h.Logger.Error("failed to sign token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	c.JSON(http.StatusOK, authResponse{ID: u.ID, Username: u.Username, Email: u.Email, Token: token})
}

// SearchRecipes proxies a free-text search to the external source, serving
// from the cache when possible.
func (h *Handler) SearchRecipes(c *gin.Context) {
	query := strings.TrimSpace(c.Query("query"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter is required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), upstreamTimeout)
	defer cancel()

	if h.Cache != nil {
		if summaries, ok := h.Cache.Get(ctx, query); ok {
			c.JSON(http.StatusOK, summaries)
			return
		}
	}

	summaries, err := h.Source.Search(ctx, query)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to fetch external recipes"})
		return
	}

	if h.Cache != nil {
		if err := h.Cache.Set(ctx, query, summaries); err != nil {
			h.Logger.Warn("failed to cache search results", zap.Error(err))
		}
	}

	c.JSON(http.StatusOK, summaries)
}

// GetExternalRecipe proxies a detail lookup to the external source.
func (h *Handler) GetExternalRecipe(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), upstreamTimeout)
	defer cancel()

	detail, err := h.Source.GetRecipe(ctx, c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to fetch recipe details"})
		return
	}

	c.JSON(http.StatusOK, detail)
}

type saveRecipeRequest struct {
	ExternalID          string               `json:"externalId"`
	Title               string               `json:"title"`
	ImageURL            string               `json:"imageUrl"`
	OriginalIngredients []recipe.Ingredient  `json:"originalIngredients"`
	CustomIngredients   *[]recipe.Ingredient `json:"customIngredients"`
	Instructions        string               `json:"instructions"`
}

// SaveRecipe creates or replaces the caller's customized copy of an external
// recipe. The substitution map is always computed here, never trusted from
// the client, and the owner always comes from the verified token.
func (h *Handler) SaveRecipe(c *gin.Context) {
	ownerID := callerID(c)

	var req saveRecipeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if strings.TrimSpace(req.Title) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
		return
	}
	if len(req.OriginalIngredients) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "originalIngredients list is required and cannot be empty"})
		return
	}

	externalID := strings.TrimSpace(req.ExternalID)
	if externalID == "" {
		// Recipes built from scratch still need an upsert key.
		externalID = "custom:" + uuid.New().String()
	}

	original := recipe.IngredientStrings(req.OriginalIngredients)

	// An absent custom list means "no edits yet"; an explicitly empty one
	// means the user deleted everything, which is allowed.
	var custom []string
	if req.CustomIngredients == nil {
		custom = append([]string(nil), original...)
	} else {
		custom = recipe.IngredientStrings(*req.CustomIngredients)
	}

	saved, err := h.Recipes.UpsertRecipe(c.Request.Context(), ownerID, recipe.UpsertParams{
		ExternalID:          externalID,
		Title:               req.Title,
		ImageURL:            req.ImageURL,
		OriginalIngredients: original,
		CustomIngredients:   custom,
		Substitutions:       recipe.ComputeSubstitutions(original, custom),
		Instructions:        req.Instructions,
	})
	if err != nil {
		h.Logger.Error("failed to save recipe", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save recipe"})
		return
	}

	c.JSON(http.StatusOK, saved)
}

// ListRecipes returns the caller's cookbook.
func (h *Handler) ListRecipes(c *gin.Context) {
	recipes, err := h.Recipes.ListRecipes(c.Request.Context(), callerID(c))
	if err != nil {
		h.Logger.Error("failed to list recipes", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list recipes"})
		return
	}

	c.JSON(http.StatusOK, recipes)
}

// GetRecipe returns one owned recipe.
func (h *Handler) GetRecipe(c *gin.Context) {
	r, err := h.Recipes.GetRecipe(c.Request.Context(), callerID(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, recipe.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "recipe not found"})
			return
		}
		h.Logger.Error("failed to get recipe", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get recipe"})
		return
	}

	c.JSON(http.StatusOK, r)
}

type updateRecipeRequest struct {
	Title             string               `json:"title"`
	ImageURL          string               `json:"imageUrl"`
	CustomIngredients *[]recipe.Ingredient `json:"customIngredients"`
	Instructions      string               `json:"instructions"`
}

// UpdateRecipe replaces the editable fields of an owned recipe and recomputes
// the substitution map against the stored original ingredients.
func (h *Handler) UpdateRecipe(c *gin.Context) {
	ownerID := callerID(c)
	id := c.Param("id")

	var req updateRecipeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
		return
	}

	existing, err := h.Recipes.GetRecipe(c.Request.Context(), ownerID, id)
	if err != nil {
		if errors.Is(err, recipe.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "recipe not found"})
			return
		}
		h.Logger.Error("failed to get recipe for update", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update recipe"})
		return
	}

	custom := existing.CustomIngredients
	if req.CustomIngredients != nil {
		custom = recipe.IngredientStrings(*req.CustomIngredients)
	}

	updated, err := h.Recipes.UpdateRecipe(c.Request.Context(), ownerID, id, recipe.UpdateParams{
		Title:             req.Title,
		ImageURL:          req.ImageURL,
		CustomIngredients: custom,
		Substitutions:     recipe.ComputeSubstitutions(existing.OriginalIngredients, custom),
		Instructions:      req.Instructions,
	})
	if err != nil {
		if errors.Is(err, recipe.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "recipe not found"})
			return
		}
		h.Logger.Error("failed to update recipe", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update recipe"})
		return
	}

	c.JSON(http.StatusOK, updated)
}

// DeleteRecipe removes an owned recipe.
func (h *Handler) DeleteRecipe(c *gin.Context) {
	err := h.Recipes.DeleteRecipe(c.Request.Context(), callerID(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, recipe.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "recipe not found"})
			return
		}
		h.Logger.Error("failed to delete recipe", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete recipe"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "recipe deleted"})
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
