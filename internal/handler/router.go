package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// RegisterRoutes 注册全部路由
func RegisterRoutes(
	router *gin.Engine,
	urlHandler *ShortLinkHandler,
	authHandler *AuthHandler,
	authMiddleware, adminMiddleware gin.HandlerFunc,
) {
	router.GET("/", urlHandler.IndexPage)
	router.GET("/health", urlHandler.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/:code", urlHandler.RedirectToOriginal)

	authGroup := router.Group("/api/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	api := router.Group("/api")
	api.Use(authMiddleware)
	{
		api.GET("/me", authHandler.GetCurrentUser)
		api.POST("/shorten", urlHandler.CreateShortLink)
		api.POST("/shorten/bulk", urlHandler.CreateBulk)
		api.GET("/urls", urlHandler.ListLinks)
		api.GET("/analytics/:code", urlHandler.GetAnalytics)
		api.GET("/analytics/:code/clicks", urlHandler.GetClicks)
		api.GET("/stats", urlHandler.GetStats)
	}

	admin := api.Group("/admin")
	admin.Use(adminMiddleware)
	{
		admin.GET("/stats", urlHandler.GetGlobalStats)
	}
}
