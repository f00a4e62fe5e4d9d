package handlers

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts every endpoint on router
func RegisterRoutes(router *gin.Engine, personHandler *PersonHandler, healthHandler *HealthHandler) {
	// People
	router.POST("/people", personHandler.CreatePerson)
	router.GET("/people", personHandler.SearchPeople)
	router.GET("/people/:id", personHandler.GetPerson)
	router.GET("/people-count", personHandler.CountPeople)

	// Operations
	router.GET("/health", healthHandler.HealthCheck)
	router.GET("/status", healthHandler.Status)
	router.POST("/reset", healthHandler.Reset)
	router.GET("/metrics", Metrics())

	router.NoRoute(NotFound)
}
