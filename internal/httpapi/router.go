package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/flowkan/process-ai/internal/common"
	"github.com/flowkan/process-ai/internal/config"
	"github.com/flowkan/process-ai/internal/httpapi/handlers"
	"github.com/flowkan/process-ai/internal/httpapi/middleware"
	"github.com/flowkan/process-ai/internal/notify"
	"github.com/flowkan/process-ai/internal/process"
	"github.com/flowkan/process-ai/internal/store/redisstore"
)

func NewRouter(db *gorm.DB, cfg config.Config, rds *redisstore.Store, hub *notify.Hub, jobs process.JobQueue) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.Use(middleware.RequestID())

	h := handlers.NewHandler(db, cfg, rds, hub, jobs)

	r.GET("/ping", h.Ping)

	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(cfg.JWTSecret))
	authGroup.POST("/process/sessions", h.CreateProcessSession)
	authGroup.POST("/process/messages", h.SendProcessMessage)
	authGroup.GET("/process/sessions/:session_id/messages", h.ListProcessMessages)
	authGroup.GET("/process/sessions/:session_id/template", h.GetGeneratedTemplate)
	authGroup.GET("/ws/process/:session_id", h.ProcessFeed)

	return r
}
