package server

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"support-widget/internal/credential"
	"support-widget/internal/handler"
	"support-widget/internal/hub"
	"support-widget/internal/logging"
	"support-widget/internal/middleware"
	"support-widget/internal/support"
)

type Deps struct {
	Service     *support.Service
	Credentials credential.Source
	Logger      *slog.Logger

	// SendLimiter throttles POST /conversations per client IP; nil disables
	// it. The caller owns it and stops it on shutdown.
	SendLimiter   *middleware.RateLimiter
	WatchInterval time.Duration
}

func NewRouter(deps Deps) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(deps.Logger))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true})
	})

	watchers := hub.New()
	conversationHandler := &handler.ConversationHandler{
		Service:     deps.Service,
		Credentials: deps.Credentials,
		Hub:         watchers,
		Logger:      deps.Logger,
	}
	watchHandler := &handler.WatchHandler{
		Service:     deps.Service,
		Credentials: deps.Credentials,
		Hub:         watchers,
		Interval:    deps.WatchInterval,
		Logger:      deps.Logger,
	}

	for _, prefix := range []string{"", "/api/intercom"} {
		g := r.Group(prefix)
		g.GET("/conversations", conversationHandler.Fetch)
		g.POST("/conversations", middleware.RateLimitMiddleware(deps.SendLimiter), conversationHandler.Send)
		g.GET("/conversations/ws", watchHandler.Serve)
	}

	return r
}
