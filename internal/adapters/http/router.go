package http

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/classmesh/sfu/internal/adapters/signal"
	"github.com/classmesh/sfu/internal/config"
	"github.com/classmesh/sfu/internal/sfu"
)

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware pins a browser-scoped token so reconnects from the
// same client can be correlated in logs.
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

// AuthMiddleware verifies the signaling token and places its claims on the
// gin context for the websocket handler.
func AuthMiddleware(verifier Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			token = c.GetHeader("Authorization")
		}
		claims, err := verifier.Verify(token)
		if err != nil {
			code := sfu.CodeOf(err)
			status := http.StatusUnauthorized
			if code == sfu.CodeAuthMissing {
				status = http.StatusForbidden
			}
			log.Warn().Err(err).Str("module", "adapters.http").Str("code", string(code)).Msg("auth rejected")
			c.AbortWithStatusJSON(status, gin.H{"code": code, "error": err.Error()})
			return
		}
		c.Set("client_id", string(claims.Client))
		c.Set("room_id", string(claims.Room))
		c.Set("role", string(claims.Role))
		c.Set("display_name", claims.Name)
		c.Next()
	}
}

func SetupRouter(cfg *config.Config, ctl *signal.Controller, verifier Verifier) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("ClassmeshSessions", store))
	r.Use(ClientTokenMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "sfu": ctl.Orch.SfuID})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.GET("/ws/signal", AuthMiddleware(verifier), func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("sid", c.GetString("client_token")).Msg("ws signal endpoint hit")
		ctl.HandleSignal(c)
	})

	return r
}
