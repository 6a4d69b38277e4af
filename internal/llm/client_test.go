package llm

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/require"

	"stock-ai-analyzer/internal/prompt"
)

func chunkMsg(delta string) *schema.Message {
	return &schema.Message{Role: schema.Assistant, Content: delta}
}

func chunkMsgWithUsage(delta string, promptTok, completionTok int) *schema.Message {
	return &schema.Message{
		Role:    schema.Assistant,
		Content: delta,
		ResponseMeta: &schema.ResponseMeta{
			Usage: &schema.TokenUsage{
				PromptTokens:     promptTok,
				CompletionTokens: completionTok,
				TotalTokens:      promptTok + completionTok,
			},
		},
	}
}

type fakeModel struct {
	msgs []*schema.Message
	err  error
}

func (f *fakeModel) Stream(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	if f.err != nil {
		return nil, f.err
	}
	return schema.StreamReaderFromArray(f.msgs), nil
}

func TestComplete_StreamsChunksAndFinalUsage(t *testing.T) {
	client := NewWithModel(&fakeModel{msgs: []*schema.Message{
		chunkMsg("短期"),
		chunkMsg("偏强"),
		chunkMsgWithUsage("。", 10, 20),
	}}, "gpt-4o")

	stream, err := client.Complete(context.Background(), prompt.Context{System: "s", User: "u"})
	require.NoError(t, err)
	defer stream.Close()

	var text string
	var final *Usage
	for {
		ch, err := stream.Recv()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		text += ch.Delta
		if ch.Usage != nil {
			final = ch.Usage
		}
	}
	require.Equal(t, "短期偏强。", text)
	require.NotNil(t, final)
	require.Equal(t, Usage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30}, *final)
	require.Equal(t, *final, stream.Usage())
}

func TestStream_CancelMidwayKeepsPartialUsage(t *testing.T) {
	msgs := []*schema.Message{
		chunkMsgWithUsage("a", 10, 1),
		chunkMsgWithUsage("b", 10, 2),
		chunkMsgWithUsage("c", 10, 3),
		chunkMsgWithUsage("d", 10, 4),
		chunkMsgWithUsage("e", 10, 5),
	}
	stream := NewStream(schema.StreamReaderFromArray(msgs))

	for i := 0; i < 2; i++ {
		_, err := stream.Recv()
		require.NoError(t, err)
	}
	stream.Close()
	stream.Close() // idempotent

	u := stream.Usage()
	require.Equal(t, 12, u.TotalTokens)
	require.Equal(t, 2, u.CompletionTokens)
}

func TestStream_UsageZeroBeforeAnyChunk(t *testing.T) {
	stream := NewStream(schema.StreamReaderFromArray([]*schema.Message{chunkMsg("x")}))
	defer stream.Close()
	require.Equal(t, Usage{}, stream.Usage())
}

func TestComplete_TranslatesStartError(t *testing.T) {
	client := NewWithModel(&fakeModel{err: &openai.APIError{HTTPStatusCode: 401, Message: "bad key"}}, "gpt-4o")
	_, err := client.Complete(context.Background(), prompt.Context{})
	require.Error(t, err)
	var llmErr *Error
	require.True(t, errors.As(err, &llmErr))
	require.Equal(t, ErrAuth, llmErr.Kind)
}

func TestTranslateErr(t *testing.T) {
	cases := []struct {
		name string
		in   error
		kind ErrKind
	}{
		{"unauthorized", &openai.APIError{HTTPStatusCode: 401}, ErrAuth},
		{"forbidden", &openai.APIError{HTTPStatusCode: 403}, ErrAuth},
		{"throttled", &openai.APIError{HTTPStatusCode: 429}, ErrRateLimit},
		{"gateway timeout", &openai.APIError{HTTPStatusCode: 504}, ErrTimeout},
		{"server error", &openai.APIError{HTTPStatusCode: 500}, ErrProtocol},
		{"deadline", context.DeadlineExceeded, ErrTimeout},
		{"cancelled", context.Canceled, ErrTimeout},
		{"other", errors.New("garbled frame"), ErrProtocol},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := translateErr(tc.in)
			var llmErr *Error
			require.True(t, errors.As(out, &llmErr))
			require.Equal(t, tc.kind, llmErr.Kind)
		})
	}
}
