package process

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/flowkan/process-ai/internal/ai"
	"github.com/flowkan/process-ai/internal/backoff"
	"gorm.io/gorm"
)

// Rejection reasons for the front of a turn. These are the only errors a
// caller sees besides hard persistence failures; everything downstream
// degrades to a fallback reply or a log line.
var (
	ErrEmptySessionID  = errors.New("session id is required")
	ErrInvalidUser     = errors.New("user id is required")
	ErrEmptyMessage    = errors.New("message is empty")
	ErrMessageTooLong  = errors.New("message exceeds maximum length")
	ErrRateLimited     = errors.New("rate limit exceeded")
	ErrSessionNotFound = errors.New("session not found")
	ErrAccessDenied    = errors.New("session access denied")
	ErrSessionInactive = errors.New("session is not active")
	ErrSessionExpired  = errors.New("session has expired")
)

const (
	maxMessageChars = 2000

	// Logged in place of real usage when the service omits token counts.
	nominalTokens = 100
	costPerToken  = 0.000002

	historyFetchLimit = 100
)

// FlagDraftPersist gates per-user persistence of extracted drafts.
const FlagDraftPersist = "process_template_draft"

const fallbackReply = "I'm sorry, I couldn't process your request right now. Please try again in a moment. / " +
	"抱歉，我暂时无法处理您的请求，请稍后再试。"

var fallbackQuestions = []string{
	"What industry or domain is this process for?",
	"What is the main goal or final deliverable of the process?",
	"Roughly how many steps do you expect, and are any of them time-critical?",
}

// DefaultSystemPrompt instructs the model to embed its structured answer
// in a json-tagged fenced block matching DraftSchema.
const DefaultSystemPrompt = `You are a business-process consultant helping the user define a process template through conversation.

Always answer with a fenced code block tagged json containing a single JSON object with:
- "schema": "` + DraftSchema + `"
- "answer": your conversational reply
- "missing_information": questions you still need answered (optional)
- "process_template_draft": {"name", "stepTemplates"} once enough is known (optional)

Each step template has "seq" (1-based, continuous), "name", "basis" ("goal" for step 1, "prev" otherwise), "offsetDays" and optional "dependsOn" listing earlier seq values only.`

// Collaborator contracts. The core consumes these and never reimplements
// them; all are optional except the repo and the provider registry.
type RateLimiter interface {
	Allow(ctx context.Context, userID uint64) bool
}

type CacheMirror interface {
	SetConversation(ctx context.Context, sessionID string, msgs []Message) error
}

type Notifier interface {
	BroadcastTurn(sessionID string, ev TurnEvent)
	NotifyDraftGenerated(sessionID string, tpl *GeneratedTemplate)
}

// AuditHasher returns a content hash over the conversation, or "" when
// auditing is disabled.
type AuditHasher interface {
	Hash(msgs []Message) string
}

type JobQueue interface {
	EnqueueAnalysis(ctx context.Context, job AnalysisJob) error
}

type FeatureFlags interface {
	IsEnabled(ctx context.Context, flag string, userID uint64) bool
}

// AnalysisJob is the fire-and-forget descriptor for the background
// requirement-extraction worker.
type AnalysisJob struct {
	SessionID string            `json:"session_id"`
	UserID    uint64            `json:"user_id"`
	Context   map[string]string `json:"context,omitempty"`
}

type TurnInput struct {
	SessionID string
	UserID    uint64
	Message   string
	Metadata  map[string]string
}

type TurnResult struct {
	UserMessage      Message  `json:"user_message"`
	AssistantMessage Message  `json:"assistant_message"`
	Confidence       float64  `json:"confidence"`
	TokensUsed       int      `json:"tokens_used"`
	Fallback         bool     `json:"fallback"`
	SuggestedReplies []string `json:"suggested_replies,omitempty"`
	Progress         Progress `json:"progress"`
}

// TurnEvent is the payload broadcast to live listeners after a turn.
type TurnEvent struct {
	Type             string   `json:"type"`
	SessionID        string   `json:"session_id"`
	UserMessage      Message  `json:"user_message"`
	AssistantMessage Message  `json:"assistant_message"`
	Fallback         bool     `json:"fallback"`
	Progress         Progress `json:"progress"`
}

type Options struct {
	WindowSize   int
	TokenBudget  int
	SystemPrompt string

	RateLimiter RateLimiter
	Cache       CacheMirror
	Notifier    Notifier
	Audit       AuditHasher
	Jobs        JobQueue
	Flags       FeatureFlags
}

type Service struct {
	repo     *Repo
	registry *ai.Registry

	windowSize   int
	tokenBudget  int
	systemPrompt string
	retry        backoff.Policy

	limiter  RateLimiter
	cache    CacheMirror
	notifier Notifier
	audit    AuditHasher
	jobs     JobQueue
	flags    FeatureFlags

	locks sync.Map // sessionID -> *sync.Mutex
}

func NewService(repo *Repo, registry *ai.Registry, opts Options) *Service {
	windowSize := opts.WindowSize
	if windowSize <= 0 || windowSize > 100 {
		windowSize = 20
	}
	systemPrompt := opts.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	return &Service{
		repo:         repo,
		registry:     registry,
		windowSize:   windowSize,
		tokenBudget:  opts.TokenBudget,
		systemPrompt: systemPrompt,
		retry: backoff.Policy{
			MaxAttempts: 2,
			Delay:       backoff.Exponential(time.Second, 30*time.Second),
			Retryable:   retryableGeneration,
		},
		limiter:  opts.RateLimiter,
		cache:    opts.Cache,
		notifier: opts.Notifier,
		audit:    opts.Audit,
		jobs:     opts.Jobs,
		flags:    opts.Flags,
	}
}

// retryableGeneration: 429 and 503 plus connection-level failures get one
// more attempt; everything else falls back immediately.
func retryableGeneration(err error) bool {
	switch ai.StatusOf(err) {
	case 429, 503:
		return true
	}
	switch ai.CodeOf(err) {
	case "ECONNRESET", "ETIMEDOUT", "ENOTFOUND":
		return true
	}
	return false
}

func (s *Service) CreateSession(ctx context.Context, userID uint64, provider, model string, sessionContext map[string]string, ttl time.Duration) (*Session, error) {
	if provider == "" {
		provider = "ollama"
	}
	if model == "" {
		model = "llama3:latest"
	}

	sid, err := NewSessionID()
	if err != nil {
		return nil, err
	}

	sess := &Session{
		SessionID: sid,
		UserID:    userID,
		Provider:  provider,
		Model:     model,
		Status:    SessionActive,
		Context:   sessionContext,
	}
	if ttl > 0 {
		exp := time.Now().Add(ttl)
		sess.ExpiresAt = &exp
	}

	if err := s.repo.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Service) GetSession(ctx context.Context, userID uint64, sessionID string) (*Session, error) {
	sess, err := s.repo.GetSessionBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if sess.UserID != userID {
		return nil, ErrAccessDenied
	}
	return sess, nil
}

func (s *Service) ListMessages(ctx context.Context, userID uint64, sessionID string, limit int, beforeID uint64) ([]Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.ListMessages(ctx, userID, sessionID, limit, beforeID)
}

func (s *Service) lockSession(sessionID string) func() {
	v, _ := s.locks.LoadOrStore(sessionID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// ProcessTurn runs one user turn through the full pipeline: validate,
// rate-limit, load, generate (with one retry or fallback), extract,
// optionally persist a draft, record the turn, enqueue analysis, persist,
// mirror, log usage, broadcast and score progress.
func (s *Service) ProcessTurn(ctx context.Context, in TurnInput) (*TurnResult, error) {
	if strings.TrimSpace(in.SessionID) == "" {
		return nil, ErrEmptySessionID
	}
	if in.UserID == 0 {
		return nil, ErrInvalidUser
	}
	if strings.TrimSpace(in.Message) == "" {
		return nil, ErrEmptyMessage
	}
	if utf8.RuneCountInString(in.Message) > maxMessageChars {
		return nil, ErrMessageTooLong
	}

	if s.limiter != nil && !s.limiter.Allow(ctx, in.UserID) {
		return nil, ErrRateLimited
	}

	// Turns for one session are serialized here; the version check in
	// AppendConversation still guards writers from other instances.
	unlock := s.lockSession(in.SessionID)
	defer unlock()

	// load + ownership/status checks
	sess, err := s.repo.GetSessionBySessionID(ctx, in.SessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if sess.UserID != in.UserID {
		return nil, ErrAccessDenied
	}
	if sess.Status != SessionActive {
		return nil, ErrSessionInactive
	}
	if sess.ExpiresAt != nil && time.Now().After(*sess.ExpiresAt) {
		return nil, ErrSessionExpired
	}

	history, err := s.repo.ListRecentMessagesAsc(ctx, sess.SessionID, historyFetchLimit)
	if err != nil {
		return nil, err
	}

	// generate, with retry-once-then-fallback semantics
	reply, genErr := s.generate(ctx, sess, history, in.Message)

	result := &TurnResult{}
	var replyContent string
	if genErr != nil {
		status := ai.StatusOf(genErr)
		log.Printf("generate failed session=%s status=%d err=%v", sess.SessionID, status, genErr)
		replyContent = fallbackReply
		result.Fallback = true
		if status != 400 {
			result.SuggestedReplies = append([]string(nil), fallbackQuestions...)
		}
	} else {
		replyContent = reply.Content
		result.Confidence = reply.Confidence
		result.TokensUsed = reply.TokensUsed
	}

	// extract & validate; failures are logged, never surfaced
	if genErr == nil {
		s.extractDraft(ctx, sess, in.UserID, reply)
	}

	userMsg := Message{
		SessionID: sess.SessionID,
		UserID:    in.UserID,
		Role:      RoleUser,
		Content:   in.Message,
		Metadata:  in.Metadata,
	}
	assistantMsg := Message{
		SessionID: sess.SessionID,
		UserID:    in.UserID,
		Role:      RoleAssistant,
		Content:   replyContent,
	}
	full := append(append([]Message{}, history...), userMsg, assistantMsg)

	// audit hash, best-effort; raw content never leaves this path
	if s.audit != nil {
		if h := s.audit.Hash(full); h != "" {
			log.Printf("audit hash computed session=%s", sess.SessionID)
		}
	}

	// record the turn, user before assistant; this is the one write
	// whose failure propagates
	if err := s.repo.AppendConversation(ctx, sess, []Message{userMsg, assistantMsg}); err != nil {
		return nil, err
	}

	// background requirement extraction, fire-and-forget; enqueued after
	// the commit so the worker reads the turn it analyzes
	if s.jobs != nil {
		job := AnalysisJob{SessionID: sess.SessionID, UserID: in.UserID, Context: sess.Context}
		if err := s.jobs.EnqueueAnalysis(ctx, job); err != nil {
			log.Printf("enqueue analysis failed session=%s err=%v", sess.SessionID, err)
		}
	}

	if s.cache != nil {
		if err := s.cache.SetConversation(ctx, sess.SessionID, full); err != nil {
			log.Printf("cache mirror failed session=%s err=%v", sess.SessionID, err)
		}
	}

	// nominal figures keep usage observability when the service omits
	// token counts
	tokens := result.TokensUsed
	if tokens <= 0 {
		tokens = nominalTokens
	}
	log.Printf("usage session=%s tokens=%d cost=%.6f fallback=%v",
		sess.SessionID, tokens, float64(tokens)*costPerToken, result.Fallback)

	progress := Completeness(full, sess.Requirements, sess.Context)

	// notify only after persistence
	result.UserMessage = userMsg
	result.AssistantMessage = assistantMsg
	result.Progress = progress
	if s.notifier != nil {
		s.notifier.BroadcastTurn(sess.SessionID, TurnEvent{
			Type:             "turn",
			SessionID:        sess.SessionID,
			UserMessage:      userMsg,
			AssistantMessage: assistantMsg,
			Fallback:         result.Fallback,
			Progress:         progress,
		})
	}

	return result, nil
}

func (s *Service) generate(ctx context.Context, sess *Session, history []Message, userMessage string) (*ai.Reply, error) {
	pending := append(append([]Message{}, history...), Message{Role: RoleUser, Content: userMessage})
	msgs := BuildContext(pending, ContextOptions{
		WindowSize:      s.windowSize,
		MaxTokensBudget: s.tokenBudget,
		SystemPrompt:    s.systemPrompt,
	})

	provider, err := s.registry.Get(ctx, sess.Provider, sess.Model)
	if err != nil {
		return nil, err
	}

	var reply *ai.Reply
	err = backoff.Do(ctx, s.retry, func(ctx context.Context) error {
		r, e := provider.Generate(ctx, msgs)
		if e != nil {
			return e
		}
		reply = r
		return nil
	})
	return reply, err
}

// extractDraft runs the extractor over a genuine reply and, when the
// per-user toggle is on, persists the normalized draft and notifies.
// Nothing in here may fail the turn.
func (s *Service) extractDraft(ctx context.Context, sess *Session, userID uint64, reply *ai.Reply) {
	res := Extract(reply.Content)
	if !res.OK {
		log.Printf("extract failed session=%s errors=%v", sess.SessionID, res.Errors)
		return
	}
	log.Printf("extract ok session=%s schema=%s", sess.SessionID, res.Schema)

	if s.flags == nil || !s.flags.IsEnabled(ctx, FlagDraftPersist, userID) {
		return
	}

	tpl := ToGeneratedTemplate(res.Document)
	tpl.Metadata.Confidence = reply.Confidence
	if err := s.repo.SetGeneratedTemplate(ctx, sess.SessionID, tpl); err != nil {
		log.Printf("draft persist failed session=%s err=%v", sess.SessionID, err)
		return
	}
	if s.notifier != nil {
		s.notifier.NotifyDraftGenerated(sess.SessionID, tpl)
	}
}
