package server

import (
	_ "embed"
	"net/http"

	"github.com/gin-gonic/gin"
)

//go:embed static/index.html
var indexHTML []byte

//go:embed static/app.js
var appJS []byte

//go:embed static/style.css
var styleCSS []byte

func (s *Server) registerRoutes() {
	s.engine.GET("/", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", indexHTML)
	})
	s.engine.GET("/app.js", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/javascript; charset=utf-8", appJS)
	})
	s.engine.GET("/style.css", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/css; charset=utf-8", styleCSS)
	})
	s.engine.GET("/health", s.handleHealth)

	api := s.engine.Group("/api", s.withSession())
	api.GET("/state", s.handleState)
	api.POST("/upload", s.handleUpload)
	api.GET("/dataset", s.handleDataset)
	api.POST("/ask", s.handleAsk)
	api.POST("/reset", s.handleReset)
}
