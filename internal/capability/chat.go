package capability

import (
	"context"
	"encoding/json"
	"fmt"
)

// ChatRole mirrors the conventional chat message roles.
type ChatRole string

const (
	RoleSystem    ChatRole = "system"
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
)

type ChatMessage struct {
	Role    ChatRole
	Content string
}

// GenerateOptions configures a structured-output request. Callers
// (PRIMEExtractor, ConnectionManager's LLM triage) set Temperature low
// (0.2-0.3) per spec §6.
type GenerateOptions struct {
	Temperature float64
	MaxTokens   int
}

// Usage reports token accounting for cost tracking (§4.C15).
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Schema is a declarative JSON-schema-shaped description of the expected
// structured output. Kept as a plain map so callers can build it with
// composite literals without a schema-builder dependency.
type Schema map[string]any

// ObjectResult is the raw structured-output payload before the caller
// unmarshals it into a concrete Go type (Go interface methods cannot carry
// their own type parameters, so generate_object<T> from spec §6 is
// realized as this raw-result interface plus the generic GenerateObject
// helper function below).
type ObjectResult struct {
	Raw   json.RawMessage
	Usage Usage
}

// Chat is the structured-output generation capability (spec §6).
type Chat interface {
	GenerateObject(ctx context.Context, schema Schema, messages []ChatMessage, opts GenerateOptions) (ObjectResult, error)
}

// ChatErrorKind distinguishes the typed Chat errors spec §6 requires.
type ChatErrorKind string

const (
	ChatErrRateLimit ChatErrorKind = "rate_limit"
	ChatErrSchema    ChatErrorKind = "schema"
	ChatErrTransport ChatErrorKind = "transport"
)

type ChatError struct {
	Kind ChatErrorKind
	Err  error
}

func (e *ChatError) Error() string {
	return fmt.Sprintf("chat %s error: %v", e.Kind, e.Err)
}

func (e *ChatError) Unwrap() error { return e.Err }

func NewChatError(kind ChatErrorKind, err error) *ChatError {
	return &ChatError{Kind: kind, Err: err}
}

// GenerateObject is the generic companion to Chat.GenerateObject: it issues
// the request and unmarshals the raw result into T, surfacing unmarshal
// failures as a ChatErrSchema error so callers can distinguish them from
// transport failures.
func GenerateObject[T any](ctx context.Context, chat Chat, schema Schema, messages []ChatMessage, opts GenerateOptions) (T, Usage, error) {
	var out T
	res, err := chat.GenerateObject(ctx, schema, messages, opts)
	if err != nil {
		return out, Usage{}, err
	}
	if err := json.Unmarshal(res.Raw, &out); err != nil {
		return out, res.Usage, NewChatError(ChatErrSchema, err)
	}
	return out, res.Usage, nil
}
