package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ctrlcook/internal/api"
	"ctrlcook/internal/auth"
	"ctrlcook/internal/platform/spoonacular"
	"ctrlcook/internal/recipe"
	"ctrlcook/internal/user"
)

const testTokenSecret = "0123456789abcdef0123456789abcdef"

// mockRecipeStore is a map-backed recipe.Store with the same owner-scoped
// semantics as the Postgres implementation.
type mockRecipeStore struct {
	byID       map[string]*recipe.CustomizedRecipe
	byOwnerKey map[string]string // owner|externalID -> id
	saveError  error
}

func newMockRecipeStore() *mockRecipeStore {
	return &mockRecipeStore{
		byID:       make(map[string]*recipe.CustomizedRecipe),
		byOwnerKey: make(map[string]string),
	}
}

func ownerKey(ownerID, externalID string) string {
	return ownerID + "|" + externalID
}

func (m *mockRecipeStore) UpsertRecipe(ctx context.Context, ownerID string, params recipe.UpsertParams) (*recipe.CustomizedRecipe, error) {
	if m.saveError != nil {
		return nil, m.saveError
	}

	now := time.Now().UTC()
	key := ownerKey(ownerID, params.ExternalID)

	var r *recipe.CustomizedRecipe
	if id, ok := m.byOwnerKey[key]; ok {
		r = m.byID[id]
	}
	if r == nil {
		r = &recipe.CustomizedRecipe{
			ID:         uuid.New().String(),
			OwnerID:    ownerID,
			ExternalID: params.ExternalID,
			CreatedAt:  now,
		}
		m.byID[r.ID] = r
		m.byOwnerKey[key] = r.ID
	}

	r.Title = params.Title
	r.ImageURL = params.ImageURL
	r.OriginalIngredients = params.OriginalIngredients
	r.CustomIngredients = params.CustomIngredients
	r.Substitutions = params.Substitutions
	r.Instructions = params.Instructions
	r.UpdatedAt = now

	copied := *r
	return &copied, nil
}

func (m *mockRecipeStore) ListRecipes(ctx context.Context, ownerID string) ([]*recipe.CustomizedRecipe, error) {
	out := make([]*recipe.CustomizedRecipe, 0)
	for _, r := range m.byID {
		if r.OwnerID == ownerID {
			copied := *r
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *mockRecipeStore) GetRecipe(ctx context.Context, ownerID, id string) (*recipe.CustomizedRecipe, error) {
	r, ok := m.byID[id]
	if !ok || r.OwnerID != ownerID {
		return nil, recipe.ErrNotFound
	}
	copied := *r
	return &copied, nil
}

func (m *mockRecipeStore) UpdateRecipe(ctx context.Context, ownerID, id string, params recipe.UpdateParams) (*recipe.CustomizedRecipe, error) {
	r, ok := m.byID[id]
	if !ok || r.OwnerID != ownerID {
		return nil, recipe.ErrNotFound
	}

	r.Title = params.Title
	r.ImageURL = params.ImageURL
	r.CustomIngredients = params.CustomIngredients
	r.Substitutions = params.Substitutions
	r.Instructions = params.Instructions
	r.UpdatedAt = time.Now().UTC()

	copied := *r
	return &copied, nil
}

func (m *mockRecipeStore) DeleteRecipe(ctx context.Context, ownerID, id string) error {
	r, ok := m.byID[id]
	if !ok || r.OwnerID != ownerID {
		return recipe.ErrNotFound
	}
	delete(m.byID, id)
	delete(m.byOwnerKey, ownerKey(r.OwnerID, r.ExternalID))
	return nil
}

// mockUserStore is a map-backed user.Store.
type mockUserStore struct {
	byEmail map[string]*user.User
	byID    map[string]*user.User
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{
		byEmail: make(map[string]*user.User),
		byID:    make(map[string]*user.User),
	}
}

func (m *mockUserStore) CreateUser(ctx context.Context, username, email, passwordHash string) (*user.User, error) {
	if _, ok := m.byEmail[email]; ok {
		return nil, user.ErrDuplicate
	}
	for _, u := range m.byID {
		if u.Username == username {
			return nil, user.ErrDuplicate
		}
	}

	now := time.Now().UTC()
	u := &user.User{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.byEmail[email] = u
	m.byID[u.ID] = u
	return u, nil
}

func (m *mockUserStore) GetUserByEmail(ctx context.Context, email string) (*user.User, error) {
	u, ok := m.byEmail[email]
	if !ok {
		return nil, user.ErrNotFound
	}
	return u, nil
}

func (m *mockUserStore) GetUserByID(ctx context.Context, id string) (*user.User, error) {
	u, ok := m.byID[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return u, nil
}

// mockSource is a canned external recipe source.
type mockSource struct {
	searchCalls int
	searchErr   error
	detailErr   error
	summaries   []spoonacular.RecipeSummary
	detail      *spoonacular.RecipeDetail
}

func (m *mockSource) Search(ctx context.Context, query string) ([]spoonacular.RecipeSummary, error) {
	m.searchCalls++
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	return m.summaries, nil
}

func (m *mockSource) GetRecipe(ctx context.Context, id string) (*spoonacular.RecipeDetail, error) {
	if m.detailErr != nil {
		return nil, m.detailErr
	}
	return m.detail, nil
}

// mockSearchCache is a map-backed api.SearchCache.
type mockSearchCache struct {
	entries map[string][]spoonacular.RecipeSummary
}

func newMockSearchCache() *mockSearchCache {
	return &mockSearchCache{entries: make(map[string][]spoonacular.RecipeSummary)}
}

func (m *mockSearchCache) Get(ctx context.Context, query string) ([]spoonacular.RecipeSummary, bool) {
	s, ok := m.entries[query]
	return s, ok
}

func (m *mockSearchCache) Set(ctx context.Context, query string, summaries []spoonacular.RecipeSummary) error {
	m.entries[query] = summaries
	return nil
}

type testEnv struct {
	router  *gin.Engine
	recipes *mockRecipeStore
	users   *mockUserStore
	source  *mockSource
	cache   *mockSearchCache
	tokens  *auth.Maker
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tokens, err := auth.NewMaker(testTokenSecret, time.Hour)
	require.NoError(t, err)

	env := &testEnv{
		recipes: newMockRecipeStore(),
		users:   newMockUserStore(),
		source:  &mockSource{},
		cache:   newMockSearchCache(),
		tokens:  tokens,
	}

	handler := api.NewHandler(env.recipes, env.users, env.source, env.cache, tokens, zap.NewNop())
	env.router = api.NewRouter(handler, []string{"http://localhost:5173"})
	return env
}

func (e *testEnv) bearer(t *testing.T, userID string) string {
	t.Helper()
	token, err := e.tokens.CreateToken(userID)
	require.NoError(t, err)
	return "Bearer " + token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewBuffer(data)
	} else {
		reader = &bytes.Buffer{}
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", token)
	}

	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decodeRecipe(t *testing.T, rr *httptest.ResponseRecorder) recipe.CustomizedRecipe {
	t.Helper()
	var r recipe.CustomizedRecipe
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &r))
	return r
}

func TestRegisterAndLogin(t *testing.T) {
	env := newTestEnv(t)

	registerBody := map[string]string{
		"username": "alex",
		"email":    "alex@example.com",
		"password": "hunter22hunter22",
	}

	rr := env.do(t, http.MethodPost, "/api/users/register", "", registerBody)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var registered struct {
		ID    string `json:"id"`
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &registered))
	assert.NotEmpty(t, registered.ID)
	assert.NotEmpty(t, registered.Token)

	// The issued token authenticates the new user.
	userID, err := env.tokens.VerifyToken(registered.Token)
	require.NoError(t, err)
	assert.Equal(t, registered.ID, userID)

	// Duplicate registration is rejected.
	rr = env.do(t, http.MethodPost, "/api/users/register", "", registerBody)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// Login with correct credentials.
	rr = env.do(t, http.MethodPost, "/api/users/login", "", map[string]string{
		"email":    "alex@example.com",
		"password": "hunter22hunter22",
	})
	assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	// Wrong password is rejected without detail.
	rr = env.do(t, http.MethodPost, "/api/users/login", "", map[string]string{
		"email":    "alex@example.com",
		"password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestSaveRecipeComputesSubstitutions(t *testing.T) {
	env := newTestEnv(t)
	token := env.bearer(t, uuid.New().String())

	rr := env.do(t, http.MethodPost, "/api/recipes", token, map[string]interface{}{
		"externalId":          "654959",
		"title":               "Pancakes",
		"imageUrl":            "https://img.example/654959.jpg",
		"originalIngredients": []string{"1 cup milk, whole", "1 egg", "1 cup flour"},
		"customIngredients":   []string{"1 cup oat milk", "1 egg", "1 cup flour"},
		"instructions":        "Mix and fry.",
		// Client-supplied substitutions must be ignored.
		"substitutions": map[string]string{"1 egg": "poison"},
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	saved := decodeRecipe(t, rr)
	assert.Equal(t, "654959", saved.ExternalID)
	assert.Equal(t, map[string]string{"1 cup milk": "1 cup oat milk"}, saved.Substitutions)
	assert.Equal(t, "Mix and fry.", saved.Instructions)
}

func TestSaveRecipeAcceptsStructuredIngredients(t *testing.T) {
	env := newTestEnv(t)
	token := env.bearer(t, uuid.New().String())

	rr := env.do(t, http.MethodPost, "/api/recipes", token, map[string]interface{}{
		"externalId": "654959",
		"title":      "Pancakes",
		"originalIngredients": []interface{}{
			map[string]string{"original": "2 cups Milk, chilled", "name": "milk"},
			"1 egg",
		},
		"customIngredients": []string{"2 cups soy milk", "1 egg"},
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	saved := decodeRecipe(t, rr)
	assert.Equal(t, []string{"2 cups Milk, chilled", "1 egg"}, saved.OriginalIngredients)
	assert.Equal(t, map[string]string{"2 cups milk": "2 cups soy milk"}, saved.Substitutions)
}

func TestSaveRecipeValidation(t *testing.T) {
	env := newTestEnv(t)
	token := env.bearer(t, uuid.New().String())

	t.Run("missing title", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/api/recipes", token, map[string]interface{}{
			"externalId":          "1",
			"originalIngredients": []string{"1 egg"},
		})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("empty original ingredients", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/api/recipes", token, map[string]interface{}{
			"externalId":          "1",
			"title":               "Pancakes",
			"originalIngredients": []string{},
		})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("no token", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/api/recipes", "", map[string]interface{}{
			"externalId":          "1",
			"title":               "Pancakes",
			"originalIngredients": []string{"1 egg"},
		})
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestSaveRecipeUpsertIdempotence(t *testing.T) {
	env := newTestEnv(t)
	userID := uuid.New().String()
	token := env.bearer(t, userID)

	first := env.do(t, http.MethodPost, "/api/recipes", token, map[string]interface{}{
		"externalId":          "654959",
		"title":               "Pancakes",
		"originalIngredients": []string{"1 cup milk", "1 egg"},
		"customIngredients":   []string{"1 cup milk", "1 egg"},
	})
	require.Equal(t, http.StatusOK, first.Code)
	firstSaved := decodeRecipe(t, first)

	second := env.do(t, http.MethodPost, "/api/recipes", token, map[string]interface{}{
		"externalId":          "654959",
		"title":               "Pancakes",
		"originalIngredients": []string{"1 cup milk", "1 egg"},
		"customIngredients":   []string{"1 cup almond milk", "1 egg"},
	})
	require.Equal(t, http.StatusOK, second.Code)
	secondSaved := decodeRecipe(t, second)

	// Same row, updated in place with the second call's values.
	assert.Equal(t, firstSaved.ID, secondSaved.ID)
	assert.Equal(t, []string{"1 cup almond milk", "1 egg"}, secondSaved.CustomIngredients)
	assert.Equal(t, map[string]string{"1 cup milk": "1 cup almond milk"}, secondSaved.Substitutions)
	assert.Len(t, env.recipes.byID, 1)
}

func TestRecipeRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	token := env.bearer(t, uuid.New().String())

	rr := env.do(t, http.MethodPost, "/api/recipes", token, map[string]interface{}{
		"externalId":          "654959",
		"title":               "Pancakes",
		"originalIngredients": []string{"1 cup milk", "1 egg", "1 tbsp butter"},
		"customIngredients":   []string{"1 cup oat milk", "1 egg", "1 tbsp margarine"},
		"instructions":        "Whisk, rest, fry.",
	})
	require.Equal(t, http.StatusOK, rr.Code)
	saved := decodeRecipe(t, rr)

	rr = env.do(t, http.MethodGet, "/api/recipes/"+saved.ID, token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	fetched := decodeRecipe(t, rr)

	assert.Equal(t, saved.CustomIngredients, fetched.CustomIngredients)
	assert.Equal(t, saved.Instructions, fetched.Instructions)
	assert.Equal(t,
		recipe.ComputeSubstitutions(fetched.OriginalIngredients, fetched.CustomIngredients),
		fetched.Substitutions,
	)
}

func TestUpdateRecipeRecomputesSubstitutions(t *testing.T) {
	env := newTestEnv(t)
	token := env.bearer(t, uuid.New().String())

	rr := env.do(t, http.MethodPost, "/api/recipes", token, map[string]interface{}{
		"externalId":          "654959",
		"title":               "Pancakes",
		"originalIngredients": []string{"1 cup milk", "1 egg"},
		"customIngredients":   []string{"1 cup milk", "1 egg"},
	})
	require.Equal(t, http.StatusOK, rr.Code)
	saved := decodeRecipe(t, rr)
	require.Empty(t, saved.Substitutions)

	rr = env.do(t, http.MethodPut, "/api/recipes/"+saved.ID, token, map[string]interface{}{
		"title":             "Vegan Pancakes",
		"customIngredients": []string{"1 cup soy milk", "1 flax egg"},
		"instructions":      "Whisk and fry.",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	updated := decodeRecipe(t, rr)

	assert.Equal(t, "Vegan Pancakes", updated.Title)
	assert.Equal(t, map[string]string{
		"1 cup milk": "1 cup soy milk",
		"1 egg":      "1 flax egg",
	}, updated.Substitutions)
	// The original list stays fixed across edits.
	assert.Equal(t, saved.OriginalIngredients, updated.OriginalIngredients)
}

func TestOwnershipIsConflatedWithNotFound(t *testing.T) {
	env := newTestEnv(t)
	ownerToken := env.bearer(t, uuid.New().String())
	strangerToken := env.bearer(t, uuid.New().String())

	rr := env.do(t, http.MethodPost, "/api/recipes", ownerToken, map[string]interface{}{
		"externalId":          "654959",
		"title":               "Pancakes",
		"originalIngredients": []string{"1 egg"},
	})
	require.Equal(t, http.StatusOK, rr.Code)
	saved := decodeRecipe(t, rr)

	missingID := uuid.New().String()

	// A foreign recipe and a nonexistent one must be indistinguishable.
	for _, id := range []string{saved.ID, missingID} {
		get := env.do(t, http.MethodGet, "/api/recipes/"+id, strangerToken, nil)
		assert.Equal(t, http.StatusNotFound, get.Code)
		assert.JSONEq(t, `{"error":"recipe not found"}`, get.Body.String())

		put := env.do(t, http.MethodPut, "/api/recipes/"+id, strangerToken, map[string]interface{}{
			"title":             "Hijacked",
			"customIngredients": []string{"1 egg"},
		})
		assert.Equal(t, http.StatusNotFound, put.Code)
		assert.JSONEq(t, `{"error":"recipe not found"}`, put.Body.String())

		del := env.do(t, http.MethodDelete, "/api/recipes/"+id, strangerToken, nil)
		assert.Equal(t, http.StatusNotFound, del.Code)
		assert.JSONEq(t, `{"error":"recipe not found"}`, del.Body.String())
	}

	// The owner still sees the untouched recipe.
	get := env.do(t, http.MethodGet, "/api/recipes/"+saved.ID, ownerToken, nil)
	assert.Equal(t, http.StatusOK, get.Code)
	assert.Equal(t, "Pancakes", decodeRecipe(t, get).Title)
}

func TestListRecipesScopedToOwner(t *testing.T) {
	env := newTestEnv(t)
	aliceToken := env.bearer(t, uuid.New().String())
	bobToken := env.bearer(t, uuid.New().String())

	for i := 0; i < 2; i++ {
		rr := env.do(t, http.MethodPost, "/api/recipes", aliceToken, map[string]interface{}{
			"externalId":          fmt.Sprintf("alice-%d", i),
			"title":               "Alice's recipe",
			"originalIngredients": []string{"1 egg"},
		})
		require.Equal(t, http.StatusOK, rr.Code)
	}

	rr := env.do(t, http.MethodGet, "/api/recipes", bobToken, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var bobRecipes []recipe.CustomizedRecipe
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &bobRecipes))
	assert.Empty(t, bobRecipes)

	rr = env.do(t, http.MethodGet, "/api/recipes", aliceToken, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var aliceRecipes []recipe.CustomizedRecipe
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &aliceRecipes))
	assert.Len(t, aliceRecipes, 2)
}

func TestDeleteRecipe(t *testing.T) {
	env := newTestEnv(t)
	token := env.bearer(t, uuid.New().String())

	rr := env.do(t, http.MethodPost, "/api/recipes", token, map[string]interface{}{
		"externalId":          "654959",
		"title":               "Pancakes",
		"originalIngredients": []string{"1 egg"},
	})
	require.Equal(t, http.StatusOK, rr.Code)
	saved := decodeRecipe(t, rr)

	rr = env.do(t, http.MethodDelete, "/api/recipes/"+saved.ID, token, nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/recipes/"+saved.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSearchRecipes(t *testing.T) {
	env := newTestEnv(t)
	env.source.summaries = []spoonacular.RecipeSummary{
		{ID: "654959", Title: "Pancakes", Image: "https://img.example/654959.jpg"},
	}

	t.Run("missing query", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/recipes/search", "", nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("results returned and cached", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/recipes/search?query=pancakes", "", nil)
		require.Equal(t, http.StatusOK, rr.Code)

		var results []spoonacular.RecipeSummary
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &results))
		require.Len(t, results, 1)
		assert.Equal(t, "Pancakes", results[0].Title)
		assert.Equal(t, 1, env.source.searchCalls)

		// Second identical query is served from the cache.
		rr = env.do(t, http.MethodGet, "/api/recipes/search?query=pancakes", "", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, 1, env.source.searchCalls)
	})

	t.Run("upstream failure is opaque", func(t *testing.T) {
		env.source.searchErr = spoonacular.ErrUpstream
		rr := env.do(t, http.MethodGet, "/api/recipes/search?query=waffles", "", nil)
		assert.Equal(t, http.StatusBadGateway, rr.Code)
		assert.JSONEq(t, `{"error":"failed to fetch external recipes"}`, rr.Body.String())
	})
}

func TestGetExternalRecipe(t *testing.T) {
	env := newTestEnv(t)
	env.source.detail = &spoonacular.RecipeDetail{
		ID:    "654959",
		Title: "Pancakes",
		Ingredients: []spoonacular.DetailIngredient{
			{Original: "1 cup milk, whole", Name: "milk"},
		},
		Instructions: "Mix and fry.",
	}

	rr := env.do(t, http.MethodGet, "/api/recipes/external/654959", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var detail spoonacular.RecipeDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &detail))
	assert.Equal(t, "Pancakes", detail.Title)
	require.Len(t, detail.Ingredients, 1)
	assert.Equal(t, "milk", detail.Ingredients[0].Name)

	env.source.detailErr = spoonacular.ErrUpstream
	rr = env.do(t, http.MethodGet, "/api/recipes/external/654959", "", nil)
	assert.Equal(t, http.StatusBadGateway, rr.Code)
}
