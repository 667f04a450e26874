// Package http exposes the service: a small read-only REST surface and the
// websocket endpoint that hosts client sessions.
package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"quizcraft-service/internal/app"
	"quizcraft-service/internal/badges"
	"quizcraft-service/internal/domain"
	"quizcraft-service/internal/logger"
)

type RouterConfig struct {
	Store          app.SharedQuizRepository
	Sessions       *SessionHandler
	Log            *logger.Logger
	AllowedOrigins []string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Log == nil {
		cfg.Log = logger.NewNop()
	}
	router := gin.New()
	router.Use(gin.Recovery(), requestLog(cfg.Log))

	corsCfg := cors.Config{
		AllowMethods: []string{"GET", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
		MaxAge:       12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	router.Use(cors.New(corsCfg))

	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	api := router.Group("/api")
	{
		api.GET("/badges", listBadges)
		api.GET("/shared/:id", getSharedQuiz(cfg.Store))
		api.GET("/shared/:id/leaderboard", getLeaderboard(cfg.Store))
	}

	if cfg.Sessions != nil {
		router.GET("/ws", func(c *gin.Context) {
			cfg.Sessions.ServeWS(c.Writer, c.Request)
		})
	}
	return router
}

func listBadges(c *gin.Context) {
	type badgeDTO struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description"`
		Icon        string `json:"icon"`
	}
	all := badges.All()
	out := make([]badgeDTO, 0, len(all))
	for _, b := range all {
		out = append(out, badgeDTO{ID: b.ID, Name: b.Name, Description: b.Description, Icon: b.Icon})
	}
	c.JSON(http.StatusOK, out)
}

func getSharedQuiz(store app.SharedQuizRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		shared, err := store.GetSharedQuiz(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, shared)
	}
}

func getLeaderboard(store app.SharedQuizRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		entries, err := store.Leaderboard(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"sharedQuizId": c.Param("id"), "entries": entries})
	}
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"
	if errors.Is(err, domain.ErrSharedQuizNotFound) || errors.Is(err, domain.ErrQuizNotFound) {
		status = http.StatusNotFound
		msg = err.Error()
	}
	c.AbortWithStatusJSON(status, errorPayload{Message: msg})
}

func requestLog(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
