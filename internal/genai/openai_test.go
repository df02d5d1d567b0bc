package genai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"

	"github.com/BTreeMap/ScriptPipe/internal/models"
)

// mockChatService implements chatService for testing.
type mockChatService struct {
	resp       *openai.ChatCompletion
	err        error
	stream     *ssestream.Stream[openai.ChatCompletionChunk]
	lastParams openai.ChatCompletionNewParams
}

func (m *mockChatService) New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error) {
	m.lastParams = params
	return m.resp, m.err
}

func (m *mockChatService) NewStreaming(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) *ssestream.Stream[openai.ChatCompletionChunk] {
	m.lastParams = params
	return m.stream
}

// fakeDecoder feeds canned SSE events into an ssestream.Stream.
type fakeDecoder struct {
	events []ssestream.Event
	err    error
	idx    int
}

func (d *fakeDecoder) Next() bool {
	if d.idx >= len(d.events) {
		return false
	}
	d.idx++
	return true
}

func (d *fakeDecoder) Event() ssestream.Event { return d.events[d.idx-1] }
func (d *fakeDecoder) Close() error           { return nil }
func (d *fakeDecoder) Err() error             { return d.err }

func chunkEvent(content string) ssestream.Event {
	return ssestream.Event{Data: []byte(`{"choices":[{"delta":{"content":` + jsonString(content) + `}}]}`)}
}

func jsonString(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

func TestOpenAIGenerateLeads_Success(t *testing.T) {
	mock := &mockChatService{resp: &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: `[{"id":1,"title":"Hook","content":"Opening..."}]`}},
		},
	}}
	client := &OpenAIClient{chat: mock, model: DefaultOpenAIModel, stageModel: DefaultOpenAIModel}

	leads, err := client.GenerateLeads(context.Background(), BatchRequest{Instructions: "sys", Prompt: "usr"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(leads) != 1 || leads[0].Title != "Hook" {
		t.Errorf("unexpected leads: %+v", leads)
	}
	if len(mock.lastParams.Messages) != 2 {
		t.Errorf("expected system + user message, got %d messages", len(mock.lastParams.Messages))
	}
}

func TestOpenAIGenerateLeads_ServiceError(t *testing.T) {
	mock := &mockChatService{err: errors.New("quota exceeded")}
	client := &OpenAIClient{chat: mock, model: DefaultOpenAIModel, stageModel: DefaultOpenAIModel}

	_, err := client.GenerateLeads(context.Background(), BatchRequest{})
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Errorf("expected wrapped service error, got %v", err)
	}
}

func TestOpenAIGenerateLeads_NoChoices(t *testing.T) {
	mock := &mockChatService{resp: &openai.ChatCompletion{}}
	client := &OpenAIClient{chat: mock, model: DefaultOpenAIModel, stageModel: DefaultOpenAIModel}

	_, err := client.GenerateLeads(context.Background(), BatchRequest{})
	if !errors.Is(err, models.ErrMalformedLeadPayload) {
		t.Errorf("expected ErrMalformedLeadPayload, got %v", err)
	}
}

func TestOpenAIGenerateStage_FragmentOrder(t *testing.T) {
	dec := &fakeDecoder{events: []ssestream.Event{
		chunkEvent("Picture "),
		chunkEvent("this: "),
		{Data: []byte(`{"choices":[{"delta":{}}]}`)}, // role-only chunk, no fragment
		chunkEvent("[CLOSE UP]"),
	}}
	mock := &mockChatService{stream: ssestream.NewStream[openai.ChatCompletionChunk](dec, nil)}
	client := &OpenAIClient{chat: mock, model: DefaultOpenAIModel, stageModel: DefaultOpenAIModel}

	stream, err := client.GenerateStage(context.Background(), StreamRequest{Instructions: "sys", Prompt: "usr"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got []string
	for stream.Next() {
		got = append(got, stream.Current())
	}
	if err := stream.Err(); err != nil {
		t.Fatalf("unexpected stream error: %v", err)
	}
	want := []string{"Picture ", "this: ", "[CLOSE UP]"}
	if len(got) != len(want) {
		t.Fatalf("expected %d fragments, got %d (%q)", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("fragment %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestNewOpenAIClient_NoKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := NewOpenAIClient(); err == nil {
		t.Error("expected error when API key not provided, got nil")
	}
}
