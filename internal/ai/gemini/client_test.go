package gemini

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

const testModel = "gemini-2.5-flash"

type fakeChatCreator struct {
	mu    sync.Mutex
	calls []chatCallRecord
	queue []fakeChatResponse
}

type chatCallRecord struct {
	model  string
	config *genai.GenerateContentConfig
	chat   *fakeChat
}

type fakeChatResponse struct {
	resp *genai.GenerateContentResponse
	err  error
}

type fakeChat struct {
	mu       sync.Mutex
	response fakeChatResponse
	messages []string
}

func (f *fakeChat) SendMessage(_ context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, part := range parts {
		f.messages = append(f.messages, part.Text)
	}
	return f.response.resp, f.response.err
}

func (f *fakeChatCreator) enqueue(resp *genai.GenerateContentResponse, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, fakeChatResponse{resp: resp, err: err})
}

func (f *fakeChatCreator) Create(_ context.Context, model string, config *genai.GenerateContentConfig, _ []*genai.Content) (chatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return nil, errors.New("unexpected call")
	}
	res := f.queue[0]
	f.queue = f.queue[1:]
	chat := &fakeChat{response: res}
	f.calls = append(f.calls, chatCallRecord{model: model, config: config, chat: chat})
	return chat, nil
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{{Text: text}}}}},
	}
}

func testGenerator(chats *fakeChatCreator, attempts int) *Generator {
	return &Generator{chats: chats, model: testModel, maxRetries: attempts, logger: zap.NewNop()}
}

// recordWaits replaces the backoff wait and returns the requested delays.
func recordWaits(t *testing.T) *[]time.Duration {
	t.Helper()
	original := sleep
	var waits []time.Duration
	sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	t.Cleanup(func() { sleep = original })
	return &waits
}

func TestGeneratorRetriesServerErrors(t *testing.T) {
	recordWaits(t)

	chats := &fakeChatCreator{}
	chats.enqueue(nil, genai.APIError{Code: http.StatusInternalServerError, Status: "INTERNAL"})
	chats.enqueue(textResponse(`{"urgency": "low"}`), nil)

	output, err := testGenerator(chats, 2).GenerateContent(context.Background(), "[Role] property advisor", `{"profile": "p1"}`)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if output != `{"urgency": "low"}` {
		t.Fatalf("unexpected output: %q", output)
	}
	if len(chats.calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(chats.calls))
	}

	for _, call := range chats.calls {
		if call.model != testModel {
			t.Fatalf("unexpected model: %q", call.model)
		}
		if call.config == nil || call.config.ResponseMIMEType != "application/json" {
			t.Fatalf("expected json response type, got %+v", call.config)
		}
		if call.config.SystemInstruction == nil || call.config.SystemInstruction.Parts[0].Text != "[Role] property advisor" {
			t.Fatalf("unexpected system instruction: %+v", call.config.SystemInstruction)
		}
		if len(call.chat.messages) != 1 || call.chat.messages[0] != `{"profile": "p1"}` {
			t.Fatalf("unexpected chat message: %+v", call.chat.messages)
		}
	}
}

func TestGeneratorAttemptCap(t *testing.T) {
	waits := recordWaits(t)

	chats := &fakeChatCreator{}
	for range 2 {
		chats.enqueue(nil, genai.APIError{Code: http.StatusInternalServerError, Status: "INTERNAL"})
	}

	if _, err := testGenerator(chats, 2).GenerateContent(context.Background(), "sys", "msg"); err == nil {
		t.Fatal("expected error after the last attempt")
	}
	if len(chats.calls) != 2 || len(*waits) != 1 {
		t.Fatalf("expected 2 calls and 1 wait, got %d calls and %v", len(chats.calls), *waits)
	}
}

func TestGeneratorBacksOffExponentially(t *testing.T) {
	waits := recordWaits(t)

	chats := &fakeChatCreator{}
	for range 4 {
		chats.enqueue(nil, genai.APIError{Code: http.StatusServiceUnavailable, Status: "UNAVAILABLE"})
	}

	if _, err := testGenerator(chats, 4).GenerateContent(context.Background(), "sys", "msg"); err == nil {
		t.Fatal("expected error after retries exhausted")
	}

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if len(*waits) != len(want) {
		t.Fatalf("expected %d waits, got %v", len(want), *waits)
	}
	for i := range want {
		if (*waits)[i] != want[i] {
			t.Fatalf("wait %d: expected %s, got %s", i, want[i], (*waits)[i])
		}
	}
}

func TestGeneratorQuotaDelays(t *testing.T) {
	cases := []struct {
		name      string
		message   string
		wantCalls int
		wantWaits []time.Duration
		wantErr   bool
	}{
		{
			name:      "short delay is honoured",
			message:   "Please retry in 5.5s.",
			wantCalls: 2,
			wantWaits: []time.Duration{5500 * time.Millisecond},
		},
		{
			name:      "long delay gives up",
			message:   "quota exhausted, retry after 60 seconds",
			wantCalls: 1,
			wantErr:   true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			waits := recordWaits(t)

			chats := &fakeChatCreator{}
			chats.enqueue(nil, genai.APIError{Code: http.StatusTooManyRequests, Status: "RESOURCE_EXHAUSTED", Message: tc.message})
			chats.enqueue(textResponse("{}"), nil)

			_, err := testGenerator(chats, 3).GenerateContent(context.Background(), "sys", "msg")
			if (err != nil) != tc.wantErr {
				t.Fatalf("unexpected error state: %v", err)
			}
			if len(chats.calls) != tc.wantCalls {
				t.Fatalf("expected %d calls, got %d", tc.wantCalls, len(chats.calls))
			}
			if len(*waits) != len(tc.wantWaits) {
				t.Fatalf("expected waits %v, got %v", tc.wantWaits, *waits)
			}
			for i := range tc.wantWaits {
				if (*waits)[i] != tc.wantWaits[i] {
					t.Fatalf("expected waits %v, got %v", tc.wantWaits, *waits)
				}
			}
		})
	}
}

func TestGeneratorDoesNotRetryClientErrors(t *testing.T) {
	waits := recordWaits(t)

	chats := &fakeChatCreator{}
	chats.enqueue(nil, genai.APIError{Code: http.StatusBadRequest, Status: "INVALID_ARGUMENT"})

	if _, err := testGenerator(chats, 3).GenerateContent(context.Background(), "sys", "msg"); err == nil {
		t.Fatal("expected error")
	}
	if len(chats.calls) != 1 || len(*waits) != 0 {
		t.Fatalf("expected a single call without waits, got %d calls and %v", len(chats.calls), *waits)
	}
}

func TestGeneratorRejectsEmptyResponse(t *testing.T) {
	chats := &fakeChatCreator{}
	chats.enqueue(&genai.GenerateContentResponse{}, nil)

	if _, err := testGenerator(chats, 1).GenerateContent(context.Background(), "", "msg"); err == nil {
		t.Fatal("expected error for empty response")
	}
	if chats.calls[0].config.SystemInstruction != nil {
		t.Fatalf("expected no system instruction for blank system prompt")
	}
}
