package chat

import (
	"context"
	"testing"
	"time"

	"github.com/procurelab/bidwise/config"
	"github.com/procurelab/bidwise/internal/llm"
)

// streamProvider feeds scripted events and honors context cancellation,
// blocking after the script runs out until the context is canceled.
type streamProvider struct {
	events    []llm.StreamEvent
	hang      bool
	reasoning bool
	streamErr error

	gotMessages []llm.Message
}

func (p *streamProvider) Generate(context.Context, []llm.Message, string, llm.Options) (string, llm.Usage, error) {
	panic("not used")
}

func (p *streamProvider) Stream(ctx context.Context, messages []llm.Message, _ string, _ llm.Options) (*llm.StreamHandle, error) {
	p.gotMessages = messages
	events := make(chan llm.StreamEvent)
	handle, finish := llm.NewStreamHandle(events)
	go func() {
		defer close(events)
		for _, ev := range p.events {
			select {
			case events <- ev:
			case <-ctx.Done():
				finish(ctx.Err())
				return
			}
		}
		if p.hang {
			<-ctx.Done()
			finish(ctx.Err())
			return
		}
		finish(p.streamErr)
	}()
	return handle, nil
}

func (p *streamProvider) SupportsReasoning(string) bool { return p.reasoning }

func (p *streamProvider) ModelInfo(string) (config.LLMModel, error) { return config.LLMModel{}, nil }

func drain(t *testing.T, g *Generation) string {
	t.Helper()
	var got string
	for d := range g.Deltas() {
		got += d.Content
	}
	return got
}

func TestGenerationCompletes(t *testing.T) {
	p := &streamProvider{events: []llm.StreamEvent{
		{ContentDelta: "Hel"},
		{ContentDelta: "lo"},
		{FinishReason: "stop"},
	}}
	m := NewManager(p, config.LLMRoutingConfig{Chat: "chat"}, nil)

	g, err := m.Start(context.Background(), []llm.Message{{Role: "user", Content: "hi"}}, "")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := drain(t, g); got != "Hello" {
		t.Fatalf("streamed content = %q", got)
	}
	out := g.Outcome()
	if out.Status != StatusCompleted || out.Content != "Hello" {
		t.Fatalf("outcome = %+v", out)
	}
	if m.Active() != nil {
		t.Fatal("generation still active after completion")
	}
}

func TestSystemPromptPrepended(t *testing.T) {
	p := &streamProvider{events: []llm.StreamEvent{{ContentDelta: "ok"}}}
	m := NewManager(p, config.LLMRoutingConfig{Chat: "chat"}, nil)

	g, err := m.Start(context.Background(), []llm.Message{{Role: "user", Content: "hi"}}, "")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	drain(t, g)
	g.Outcome()

	if len(p.gotMessages) != 2 {
		t.Fatalf("provider got %d messages, want 2", len(p.gotMessages))
	}
	if p.gotMessages[0].Role != "system" || p.gotMessages[0].Content == "" {
		t.Fatalf("first message = %+v, want system prompt", p.gotMessages[0])
	}
	if p.gotMessages[1].Content != "hi" {
		t.Fatalf("user turn = %+v", p.gotMessages[1])
	}

	// A caller-supplied system turn is not duplicated.
	p2 := &streamProvider{events: []llm.StreamEvent{{ContentDelta: "ok"}}}
	m2 := NewManager(p2, config.LLMRoutingConfig{Chat: "chat"}, nil)
	g2, err := m2.Start(context.Background(), []llm.Message{
		{Role: "system", Content: "custom framing"},
		{Role: "user", Content: "hi"},
	}, "")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	drain(t, g2)
	g2.Outcome()
	if len(p2.gotMessages) != 2 || p2.gotMessages[0].Content != "custom framing" {
		t.Fatalf("messages = %+v, want caller system turn kept", p2.gotMessages)
	}
}

func TestStopKeepsPartialContent(t *testing.T) {
	p := &streamProvider{
		events: []llm.StreamEvent{{ContentDelta: "Hel"}, {ContentDelta: "lo"}},
		hang:   true,
	}
	m := NewManager(p, config.LLMRoutingConfig{Chat: "chat"}, nil)

	g, err := m.Start(context.Background(), nil, "")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	var got string
	for d := range g.Deltas() {
		got += d.Content
		if got == "Hello" {
			if !m.Stop() {
				t.Fatal("Stop found nothing active")
			}
		}
	}

	out := g.Outcome()
	if out.Status != StatusStopped {
		t.Fatalf("status = %s, want stopped", out.Status)
	}
	if out.Content != "Hello" {
		t.Fatalf("partial content = %q, want %q", out.Content, "Hello")
	}
	if out.Err != "" {
		t.Fatalf("stopped outcome carries error %q", out.Err)
	}
}

func TestSingleGenerationInFlight(t *testing.T) {
	p := &streamProvider{hang: true}
	m := NewManager(p, config.LLMRoutingConfig{Chat: "chat"}, nil)

	g, err := m.Start(context.Background(), nil, "")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := m.Start(context.Background(), nil, ""); err != ErrGenerationInFlight {
		t.Fatalf("second start: %v, want ErrGenerationInFlight", err)
	}

	m.Stop()
	g.Outcome()

	// After the first finishes a new generation is allowed.
	g2, err := m.Start(context.Background(), nil, "")
	if err != nil {
		t.Fatalf("start after stop: %v", err)
	}
	m.Stop()
	g2.Outcome()
}

func TestEmptyCompletionFallback(t *testing.T) {
	p := &streamProvider{events: []llm.StreamEvent{{FinishReason: "stop"}}}
	m := NewManager(p, config.LLMRoutingConfig{Chat: "chat"}, nil)

	g, err := m.Start(context.Background(), nil, "")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	drain(t, g)
	out := g.Outcome()
	if out.Status != StatusCompleted {
		t.Fatalf("status = %s", out.Status)
	}
	if out.Content != emptyCompletionFallback {
		t.Fatalf("content = %q, want fallback", out.Content)
	}
}

func TestReasoningOnlyForFlaggedModels(t *testing.T) {
	events := []llm.StreamEvent{
		{ReasoningDelta: "thinking"},
		{ContentDelta: "answer"},
	}

	m := NewManager(&streamProvider{events: events}, config.LLMRoutingConfig{Chat: "chat"}, nil)
	g, err := m.Start(context.Background(), nil, "")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	drain(t, g)
	if out := g.Outcome(); out.Reasoning != "" {
		t.Fatalf("reasoning %q surfaced for non-reasoning model", out.Reasoning)
	}

	m = NewManager(&streamProvider{events: events, reasoning: true}, config.LLMRoutingConfig{Chat: "chat"}, nil)
	g, err = m.Start(context.Background(), nil, "")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	drain(t, g)
	if out := g.Outcome(); out.Reasoning != "thinking" {
		t.Fatalf("reasoning = %q, want %q", out.Reasoning, "thinking")
	}
}

func TestStreamFailureClearsReasoning(t *testing.T) {
	p := &streamProvider{
		events: []llm.StreamEvent{
			{ReasoningDelta: "half a thought"},
			{ContentDelta: "partial"},
		},
		reasoning: true,
		streamErr: context.DeadlineExceeded,
	}
	m := NewManager(p, config.LLMRoutingConfig{Chat: "chat"}, nil)

	g, err := m.Start(context.Background(), nil, "")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	drain(t, g)

	out := g.Outcome()
	if out.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", out.Status)
	}
	if out.Reasoning != "" {
		t.Fatalf("failed outcome kept reasoning %q", out.Reasoning)
	}
	if out.Err == "" {
		t.Fatal("failed outcome missing error")
	}
}

func TestContextCancellationStops(t *testing.T) {
	p := &streamProvider{events: []llm.StreamEvent{{ContentDelta: "x"}}, hang: true}
	m := NewManager(p, config.LLMRoutingConfig{Chat: "chat"}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	g, err := m.Start(ctx, nil, "")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	<-g.Deltas()
	cancel()
	drain(t, g)

	select {
	case <-g.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("generation did not finish after context cancel")
	}
	if out := g.Outcome(); out.Status != StatusStopped {
		t.Fatalf("status = %s, want stopped", out.Status)
	}
}
