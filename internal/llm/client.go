package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"stock-ai-analyzer/internal/prompt"
)

type Config struct {
	Model      string
	APIKey     string
	BaseURL    string
	ByAzure    bool
	APIVersion string
	Timeout    time.Duration
}

type ErrKind string

const (
	ErrAuth      ErrKind = "auth"
	ErrRateLimit ErrKind = "rate_limit"
	ErrTimeout   ErrKind = "timeout"
	ErrProtocol  ErrKind = "protocol"
)

type Error struct {
	Kind    ErrKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("llm %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Chunk is one incremental unit of a streamed completion. Usage is set on
// chunks that carry accounting data, at latest the final one.
type Chunk struct {
	Delta string
	Usage *Usage
}

type streamModel interface {
	Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error)
}

type Client struct {
	model     streamModel
	modelName string
}

func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Model == "" {
		cfg.Model = os.Getenv("OPENAI_MODEL")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = os.Getenv("OPENAI_BASE_URL")
	}
	if cfg.APIKey == "" || cfg.Model == "" {
		return nil, fmt.Errorf("llm: api_key or model missing")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	m, err := openai.NewChatModel(context.Background(), &openai.ChatModelConfig{
		APIKey:     cfg.APIKey,
		Model:      cfg.Model,
		BaseURL:    cfg.BaseURL,
		ByAzure:    cfg.ByAzure,
		APIVersion: cfg.APIVersion,
		Timeout:    cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("llm: init chat model: %w", err)
	}
	return &Client{model: m, modelName: cfg.Model}, nil
}

// NewWithModel injects a prebuilt chat model; tests use it with fake streams.
func NewWithModel(m streamModel, name string) *Client {
	return &Client{model: m, modelName: name}
}

func (c *Client) ModelName() string { return c.modelName }

// Complete starts one streaming chat completion. One in-flight request per
// call; the caller owns the returned stream and must Close it.
func (c *Client) Complete(ctx context.Context, pc prompt.Context) (*Stream, error) {
	messages := []*schema.Message{
		schema.SystemMessage(pc.System),
		schema.UserMessage(pc.User),
	}
	sr, err := c.model.Stream(ctx, messages)
	if err != nil {
		return nil, translateErr(err)
	}
	return NewStream(sr), nil
}

// Stream consumes chunks lazily. Not restartable; single consumer. Usage is
// tracked as chunks arrive so a cancelled consumer still sees the tokens
// transmitted up to that point.
type Stream struct {
	sr *schema.StreamReader[*schema.Message]

	mu    sync.Mutex
	usage Usage

	closeOnce sync.Once
}

func NewStream(sr *schema.StreamReader[*schema.Message]) *Stream {
	return &Stream{sr: sr}
}

// Recv returns the next chunk, io.EOF at end of stream, or *Error on failure.
func (s *Stream) Recv() (Chunk, error) {
	msg, err := s.sr.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Chunk{}, io.EOF
		}
		return Chunk{}, translateErr(err)
	}
	ch := Chunk{Delta: msg.Content}
	if msg.ResponseMeta != nil && msg.ResponseMeta.Usage != nil {
		u := Usage{
			PromptTokens:     msg.ResponseMeta.Usage.PromptTokens,
			CompletionTokens: msg.ResponseMeta.Usage.CompletionTokens,
			TotalTokens:      msg.ResponseMeta.Usage.TotalTokens,
		}
		s.mu.Lock()
		s.usage = u
		s.mu.Unlock()
		ch.Usage = &u
	}
	return ch, nil
}

// Usage reports the accounting seen so far. Valid during and after
// consumption, including after cancellation.
func (s *Stream) Usage() Usage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage
}

// Close releases the underlying connection. Safe to call more than once and
// while the stream is only partially consumed.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		s.sr.Close()
	})
}

func translateErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: ErrTimeout, Message: "request timed out", Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &Error{Kind: ErrTimeout, Message: "request cancelled", Err: err}
	}

	apiErr := &openai.APIError{}
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if len(msg) > 300 {
			msg = msg[:300] + "..."
		}
		switch apiErr.HTTPStatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return &Error{Kind: ErrAuth, Message: msg, Err: err}
		case http.StatusTooManyRequests:
			return &Error{Kind: ErrRateLimit, Message: msg, Err: err}
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			return &Error{Kind: ErrTimeout, Message: msg, Err: err}
		default:
			return &Error{Kind: ErrProtocol, Message: msg, Err: err}
		}
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: ErrTimeout, Message: "request timed out", Err: err}
	}
	return &Error{Kind: ErrProtocol, Message: err.Error(), Err: err}
}
