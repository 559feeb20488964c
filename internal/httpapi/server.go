package httpapi

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/Zykairotis/contextd/internal/cxerr"
	"github.com/Zykairotis/contextd/internal/realtime"
	"github.com/Zykairotis/contextd/internal/services"
)

// Server is the thin HTTP surface over the core: health, project stats and
// scopes, ingest submission, query, realtime websocket.
type Server struct {
	core *services.Core
	hub  *realtime.Hub
}

func NewServer(core *services.Core) *Server {
	return &Server{core: core, hub: realtime.NewHub(core.Bus)}
}

// Router builds the echo instance with all routes registered.
func (s *Server) Router() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = s.errorHandler

	e.GET("/health", s.health)
	e.GET("/tools", s.tools)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/ws", s.websocket)

	p := e.Group("/projects/:project")
	p.GET("/stats", s.projectStats)
	p.GET("/scopes", s.projectScopes)
	p.GET("/operations", s.projectOperations)
	p.GET("/ingest/history", s.ingestHistory)
	p.POST("/ingest/github", s.ingestGitHub)
	p.POST("/ingest/web", s.ingestWeb)
	p.POST("/ingest/text", s.ingestText)
	p.POST("/query", s.query)
	p.DELETE("/datasets/:dataset", s.resetDataset)
	return e
}

// errorHandler maps error kinds to status codes; unexpected failures get a
// correlation id the logs can be joined on.
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	if he, ok := err.(*echo.HTTPError); ok {
		_ = c.JSON(he.Code, map[string]any{"error": he.Message})
		return
	}
	switch cxerr.KindOf(err) {
	case cxerr.KindPermanentRPC, cxerr.KindConfig:
		_ = c.JSON(http.StatusBadRequest, map[string]any{"error": err.Error()})
	case cxerr.KindCancelled:
		_ = c.JSON(http.StatusRequestTimeout, map[string]any{"error": "cancelled"})
	default:
		correlationID := uuid.NewString()
		log.Error().Err(err).Str("correlation_id", correlationID).Str("path", c.Path()).Msg("request failed")
		_ = c.JSON(http.StatusInternalServerError, map[string]any{
			"error":          "internal error",
			"correlation_id": correlationID,
		})
	}
}

func (s *Server) websocket(c echo.Context) error {
	return s.hub.ServeWS(c.Response(), c.Request())
}
