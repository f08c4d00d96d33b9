package http

import (
	"context"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Pad/internal/adapters/signal"
	"github.com/dkeye/Pad/internal/app"
	"github.com/dkeye/Pad/internal/config"
	"github.com/dkeye/Pad/internal/execute"
)

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware gives each browser a stable token. It identifies the
// user across reconnects; session IDs are minted per connection on top of it.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, orch *app.Orchestrator, exec *execute.Client) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("PadSessions", store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	limiter := signal.NewJoinRateLimiter(cfg.JoinLimit, cfg.JoinWindow)
	ws := signal.NewSignalWSController(orch, limiter, cfg.SendBuffer, cfg.WriteTimeout)
	poll := signal.NewPollController(ws, cfg.PollWait, cfg.PollExpiry, cfg.SendBuffer)
	go poll.RunReaper(ctx)

	api := r.Group("/api")

	api.GET("/rooms", func(c *gin.Context) {
		c.JSON(200, gin.H{"rooms": orch.Rooms.List()})
	})

	api.GET("/ws/signal", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Msg("ws signal endpoint hit")
		ws.HandleSignal(ctx, c)
	})

	api.POST("/poll", poll.HandleOpen)
	api.POST("/poll/:sid/send", poll.HandleSend)
	api.GET("/poll/:sid/events", poll.HandleEvents)
	api.DELETE("/poll/:sid", poll.HandleClose)

	api.POST("/execute", handleExecute(exec))

	return r
}
