package handlers

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/flowkan/process-ai/internal/ai"
	"github.com/flowkan/process-ai/internal/audit"
	"github.com/flowkan/process-ai/internal/common"
	"github.com/flowkan/process-ai/internal/config"
	"github.com/flowkan/process-ai/internal/notify"
	"github.com/flowkan/process-ai/internal/process"
	"github.com/flowkan/process-ai/internal/store/redisstore"
)

type Handler struct {
	DB         *gorm.DB
	Cfg        config.Config
	Redis      *redisstore.Store
	Hub        *notify.Hub
	ProcessSvc *process.Service
}

func NewHandler(db *gorm.DB, cfg config.Config, rds *redisstore.Store, hub *notify.Hub, jobs process.JobQueue) *Handler {
	repo := process.NewRepo(db)

	reg := ai.NewRegistry()
	reg.Register("ollama", func(ctx context.Context, model string) (ai.Provider, error) {
		m := strings.TrimSpace(model)
		if m == "" {
			m = cfg.OllamaModel
		}
		return ai.NewOllamaProvider(cfg.OllamaBaseURL, m), nil
	})
	reg.Register("openrouter", func(ctx context.Context, model string) (ai.Provider, error) {
		m := strings.TrimSpace(model)
		if m == "" {
			m = cfg.OpenRouterModel
		}
		return ai.NewOpenRouterProvider(cfg.OpenRouterBaseURL, cfg.OpenRouterAPIKey, m,
			cfg.OpenRouterSiteURL, cfg.OpenRouterAppName), nil
	})

	rds.SetFlagDefault(process.FlagDraftPersist, cfg.DraftPersistDefault)

	svc := process.NewService(repo, reg, process.Options{
		WindowSize:   cfg.ContextWindowSize,
		TokenBudget:  cfg.ContextTokenBudget,
		SystemPrompt: cfg.SystemPrompt,
		RateLimiter:  rds,
		Cache:        rds,
		Notifier:     hub,
		Audit:        audit.NewHasher(cfg.AuditEnabled),
		Jobs:         jobs,
		Flags:        rds,
	})

	return &Handler{DB: db, Cfg: cfg, Redis: rds, Hub: hub, ProcessSvc: svc}
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}
