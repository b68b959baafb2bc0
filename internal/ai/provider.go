package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"syscall"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Reply is a single non-streaming generation result. TokensUsed and
// Confidence are zero when the upstream service omits them.
type Reply struct {
	Content    string
	TokensUsed int
	Confidence float64
}

type Provider interface {
	Generate(ctx context.Context, messages []Message) (*Reply, error)
}

// APIError carries the upstream HTTP status, or a connection-level code
// (ECONNRESET, ETIMEDOUT, ENOTFOUND) when the request never produced a
// status. Callers classify retryability from these two fields.
type APIError struct {
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *APIError) Error() string {
	switch {
	case e.Status != 0:
		return fmt.Sprintf("ai: status %d: %s", e.Status, e.Message)
	case e.Code != "":
		return fmt.Sprintf("ai: %s: %s", e.Code, e.Message)
	default:
		return fmt.Sprintf("ai: %s", e.Message)
	}
}

func (e *APIError) Unwrap() error { return e.Err }

// StatusOf returns the upstream HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Status
	}
	return 0
}

// CodeOf returns the connection-level error code carried by err, or "".
func CodeOf(err error) string {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// wrapTransportError converts an http.Client.Do failure into an APIError
// with a connection-level code where one can be recognized.
func wrapTransportError(provider string, err error) *APIError {
	return &APIError{
		Code:    transportCode(err),
		Message: provider + ": " + err.Error(),
		Err:     err,
	}
}

func transportCode(err error) string {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "ENOTFOUND"
	}
	if errors.Is(err, syscall.ECONNRESET) {
		return "ECONNRESET"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "ETIMEDOUT"
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return "ETIMEDOUT"
	}
	return ""
}

type ProviderFactory func(ctx context.Context, model string) (Provider, error)

// Registry routes provider lookups by name; sessions carry their own
// provider/model pair and are resolved per call.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]ProviderFactory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]ProviderFactory)}
}

func (r *Registry) Register(name string, f ProviderFactory) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

func (r *Registry) Get(ctx context.Context, name string, model string) (Provider, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown ai provider: %s", name)
	}
	return f(ctx, model)
}
