package api

import (
	"github.com/gin-gonic/gin"

	"docvault/internal/docs"
)

// NewRouter builds the gin engine with all document routes mounted.
func NewRouter(svc *docs.Service, logger docs.Logger) *gin.Engine {
	h := NewHandler(svc, logger)

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", h.Health)

	r.POST("/documents", h.Upload)
	r.GET("/documents/:id", h.Get)
	r.GET("/documents/:id/meta", h.GetMeta)
	r.DELETE("/documents/:id", h.Delete)

	owners := r.Group("/owners/:owner/documents/:type")
	{
		owners.GET("/current", h.GetCurrent)
		owners.GET("/versions", h.ListVersions)
		owners.GET("/versions/:version", h.GetVersion)
	}

	return r
}
