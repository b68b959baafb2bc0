package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/flowkan/process-ai/internal/common"
	"github.com/flowkan/process-ai/internal/httpapi/middleware"
	"github.com/flowkan/process-ai/internal/process"
)

func userIDFromContext(c *gin.Context) (uint64, bool) {
	v, ok := c.Get(middleware.UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint64)
	return id, ok
}

type createSessionReq struct {
	Provider string            `json:"provider"`
	Model    string            `json:"model"`
	Context  map[string]string `json:"context"`
}

func (h *Handler) CreateProcessSession(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req createSessionReq
	_ = c.ShouldBindJSON(&req) // allow empty {}

	ttl := time.Duration(h.Cfg.SessionTTLHours) * time.Hour
	sess, err := h.ProcessSvc.CreateSession(c.Request.Context(), uid, req.Provider, req.Model, req.Context, ttl)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to create session")
		return
	}

	common.OK(c, gin.H{"session_id": sess.SessionID, "expires_at": sess.ExpiresAt})
}

type sendMessageReq struct {
	SessionID string            `json:"session_id" binding:"required"`
	Message   string            `json:"message" binding:"required"`
	Metadata  map[string]string `json:"metadata"`
}

func (h *Handler) SendProcessMessage(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	result, err := h.ProcessSvc.ProcessTurn(c.Request.Context(), process.TurnInput{
		SessionID: req.SessionID,
		UserID:    uid,
		Message:   req.Message,
		Metadata:  req.Metadata,
	})
	if err != nil {
		status, code, msg := turnErrorResponse(err)
		common.Fail(c, status, code, msg)
		return
	}

	common.OK(c, result)
}

// turnErrorResponse maps the orchestrator's named rejections onto the API
// envelope. Anything unnamed is a hard persistence/load failure.
func turnErrorResponse(err error) (int, int, string) {
	switch {
	case errors.Is(err, process.ErrEmptySessionID),
		errors.Is(err, process.ErrInvalidUser),
		errors.Is(err, process.ErrEmptyMessage):
		return http.StatusBadRequest, 10002, err.Error()
	case errors.Is(err, process.ErrMessageTooLong):
		return http.StatusBadRequest, 10003, err.Error()
	case errors.Is(err, process.ErrRateLimited):
		return http.StatusTooManyRequests, 42901, err.Error()
	case errors.Is(err, process.ErrSessionNotFound):
		return http.StatusNotFound, 40004, err.Error()
	case errors.Is(err, process.ErrAccessDenied):
		return http.StatusForbidden, 40301, err.Error()
	case errors.Is(err, process.ErrSessionInactive),
		errors.Is(err, process.ErrSessionExpired):
		return http.StatusConflict, 40901, err.Error()
	case errors.Is(err, process.ErrVersionConflict):
		return http.StatusConflict, 40902, "conversation changed concurrently, retry"
	default:
		return http.StatusInternalServerError, 50002, "failed to process message"
	}
}

func (h *Handler) ListProcessMessages(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	sessionID := c.Param("session_id")

	limit, _ := strconv.Atoi(c.Query("limit"))
	var beforeID uint64
	if v := c.Query("before_id"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			beforeID = n
		}
	}

	msgs, err := h.ProcessSvc.ListMessages(c.Request.Context(), uid, sessionID, limit, beforeID)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50003, "failed to list messages")
		return
	}

	var nextBeforeID uint64
	if len(msgs) > 0 {
		nextBeforeID = msgs[len(msgs)-1].ID
	}

	common.OK(c, gin.H{
		"messages":       msgs,
		"next_before_id": nextBeforeID,
	})
}

func (h *Handler) GetGeneratedTemplate(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	sess, err := h.ProcessSvc.GetSession(c.Request.Context(), uid, c.Param("session_id"))
	if err != nil {
		switch {
		case errors.Is(err, process.ErrSessionNotFound):
			common.Fail(c, http.StatusNotFound, 40004, "session not found")
		case errors.Is(err, process.ErrAccessDenied):
			common.Fail(c, http.StatusForbidden, 40301, "access denied")
		default:
			common.Fail(c, http.StatusInternalServerError, 50004, "failed to load session")
		}
		return
	}
	if sess.GeneratedTemplate == nil {
		common.Fail(c, http.StatusNotFound, 40005, "no template generated yet")
		return
	}

	common.OK(c, gin.H{
		"template":       sess.GeneratedTemplate,
		"create_request": process.ToCreateRequestFromTemplate(sess.GeneratedTemplate),
	})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ProcessFeed upgrades to WebSocket and streams turn/draft events for one
// session until the client goes away.
func (h *Handler) ProcessFeed(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	sessionID := c.Param("session_id")
	if _, err := h.ProcessSvc.GetSession(c.Request.Context(), uid, sessionID); err != nil {
		common.Fail(c, http.StatusNotFound, 40004, "session not found")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	h.Hub.Subscribe(sessionID, conn)
	defer func() {
		h.Hub.Unsubscribe(sessionID, conn)
		_ = conn.Close()
	}()

	// reads are only consumed to detect disconnect
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
