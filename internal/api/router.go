package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
)

// NewRouter builds the route table. The recipe CRUD group sits behind the
// auth middleware; search and external detail lookups are public, as is the
// auth pair itself.
func NewRouter(h *Handler, allowOrigins []string) *gin.Engine {
	router := gin.New()

	router.Use(Recovery(h.Logger))
	router.Use(RequestLogger(h.Logger))
	router.Use(requestid.New())

	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", h.Health)

	api := router.Group("/api")

	users := api.Group("/users")
	{
		users.POST("/register", h.Register)
		users.POST("/login", h.Login)
	}

	recipes := api.Group("/recipes")
	{
		recipes.GET("/search", h.SearchRecipes)
		recipes.GET("/external/:id", h.GetExternalRecipe)

		owned := recipes.Group("", RequireAuth(h.Tokens))
		{
			owned.POST("", h.SaveRecipe)
			owned.GET("", h.ListRecipes)
			owned.GET("/:id", h.GetRecipe)
			owned.PUT("/:id", h.UpdateRecipe)
			owned.DELETE("/:id", h.DeleteRecipe)
		}
	}

	return router
}
