package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/jack/golang-shortlink-service/internal/config"
)

// SetupSwagger mounts the Swagger UI behind basic auth. Without credentials
// configured the UI stays disabled.
func SetupSwagger(router *gin.Engine, auth *config.AuthConfig) {
	router.StaticFile("/api/docs/openapi.yaml", "./api/openapi.yaml")

	if auth.BasicUser == "" || auth.BasicPassword == "" {
		router.GET("/docs/*any", func(c *gin.Context) {
			c.String(403, "Swagger UI is disabled. Set AUTH_BASIC_USER and AUTH_BASIC_PASSWORD to enable.")
		})
		return
	}

	authorized := router.Group("/docs", gin.BasicAuth(gin.Accounts{
		auth.BasicUser: auth.BasicPassword,
	}))

	authorized.GET("/*any", ginSwagger.WrapHandler(swaggerFiles.Handler,
		ginSwagger.URL("/api/docs/openapi.yaml"),
		ginSwagger.DefaultModelsExpandDepth(-1),
		ginSwagger.DocExpansion("list"),
	))
}
