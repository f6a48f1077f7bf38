package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/focusrelay/internal/config"
	"github.com/vovakirdan/focusrelay/internal/core"
)

// NewServer builds the HTTP server: the relay websocket endpoint plus health,
// metrics and read-only room endpoints. A nil gatherer disables /metrics.
//
// /ws is mounted on the mux directly; the websocket upgrade hijacks the
// connection, which gin's response writer refuses once a status is written.
func NewServer(hub *core.Hub, cfg *config.Config, logger *zerolog.Logger, gatherer prometheus.Gatherer) *stdhttp.Server {
	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", NewWSHandler(hub, WSOptions{
		ReadLimit:      cfg.MaxMessageBytes,
		SendBuffer:     cfg.SendBuffer,
		AllowedOrigins: cfg.AllowedOrigins,
		RateLimit:      cfg.RateLimit,
	}, logger))
	mux.Handle("/", newRouter(hub, logger, gatherer))

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func newRouter(hub *core.Hub, logger *zerolog.Logger, gatherer prometheus.Gatherer) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", healthHandler)
	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	rooms := NewRoomHandlers(hub, logger)
	api := router.Group("/api")
	{
		api.GET("/rooms", rooms.ListRooms)
		api.GET("/rooms/:roomId/snapshot", rooms.Snapshot)
	}
	return router
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
