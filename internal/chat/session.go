package chat

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/procurelab/bidwise/config"
	"github.com/procurelab/bidwise/internal/llm"
	"github.com/procurelab/bidwise/internal/telemetry"
)

// Status is the lifecycle state of a generation.
type Status string

const (
	StatusStreaming Status = "streaming"
	StatusCompleted Status = "completed"
	StatusStopped   Status = "stopped"
	StatusFailed    Status = "failed"
)

const emptyCompletionFallback = "No response was generated. Please try again."

// systemPrompt frames every completion. Prepended once per generation unless
// the caller already supplied a system turn.
const systemPrompt = "You are a procurement sourcing assistant. You help buyers research " +
	"electronic components and equipment: interpreting internal procurement data, comparing " +
	"supplier quotes and historical prices, and summarizing external market findings. Ground " +
	"every claim in the data provided in the conversation, cite which source it came from, and " +
	"flag data gaps or placeholder data explicitly instead of inventing figures. Answer in the " +
	"language the user writes in."

// ErrGenerationInFlight is returned by Start while another generation is
// still running. One generation at a time, system-wide.
var ErrGenerationInFlight = errors.New("a generation is already in flight")

// Delta is one streamed increment forwarded to the transport layer. Reasoning
// is populated only for models flagged as reasoning-capable.
type Delta struct {
	Content   string `json:"content,omitempty"`
	Reasoning string `json:"reasoning,omitempty"`
}

// Outcome is the terminal state of a generation. A stopped generation keeps
// the partial content accumulated so far; a failed one drops its reasoning.
type Outcome struct {
	Status    Status `json:"status"`
	Content   string `json:"content"`
	Reasoning string `json:"reasoning,omitempty"`
	Err       string `json:"error,omitempty"`
}

// Generation is one in-flight streaming completion. Deltas closes when the
// stream ends; Outcome blocks until then.
type Generation struct {
	ID     string
	cancel context.CancelFunc

	deltas  chan Delta
	done    chan struct{}
	outcome Outcome
}

// Deltas is the stream of increments, closed at end of generation.
func (g *Generation) Deltas() <-chan Delta { return g.deltas }

// Done closes when the generation reaches a terminal state.
func (g *Generation) Done() <-chan struct{} { return g.done }

// Outcome blocks until the generation finishes and returns its terminal state.
func (g *Generation) Outcome() Outcome {
	<-g.done
	return g.outcome
}

// Manager owns the single in-flight generation and its cancel token. Start
// rejects concurrent generations; Stop cancels the active one from any
// goroutine.
type Manager struct {
	provider llm.Provider
	routing  config.LLMRoutingConfig
	tele     *telemetry.Telemetry
	logger   *log.Logger

	mu     sync.Mutex
	active *Generation
}

// NewManager creates a manager over the given provider.
func NewManager(provider llm.Provider, routing config.LLMRoutingConfig, tele *telemetry.Telemetry) *Manager {
	return &Manager{
		provider: provider,
		routing:  routing,
		tele:     tele,
		logger:   log.New(log.Writer(), "[CHAT] ", log.LstdFlags),
	}
}

// Start begins a streaming generation. The model key falls back to the
// configured chat route when empty. Cancellation flows from ctx and from
// Stop; either way the generation lands on a stopped outcome with its partial
// content intact.
func (m *Manager) Start(ctx context.Context, messages []llm.Message, model string) (*Generation, error) {
	if model == "" {
		model = m.routing.Chat
	}
	if len(messages) == 0 || messages[0].Role != "system" {
		messages = append([]llm.Message{{Role: "system", Content: systemPrompt}}, messages...)
	}

	m.mu.Lock()
	if m.active != nil {
		m.mu.Unlock()
		return nil, ErrGenerationInFlight
	}
	genCtx, cancel := context.WithCancel(ctx)
	g := &Generation{
		ID:     uuid.NewString(),
		cancel: cancel,
		deltas: make(chan Delta, 32),
		done:   make(chan struct{}),
	}
	m.active = g
	m.mu.Unlock()

	if m.tele != nil {
		m.tele.GenerationStarted()
	}
	m.logger.Printf("generation %s started (model=%s, %d messages)", g.ID, model, len(messages))
	go m.run(genCtx, g, messages, model)
	return g, nil
}

// Stop cancels the active generation, if any, and reports whether one was
// running.
func (m *Manager) Stop() bool {
	m.mu.Lock()
	g := m.active
	m.mu.Unlock()
	if g == nil {
		return false
	}
	g.cancel()
	return true
}

// Active returns the in-flight generation or nil.
func (m *Manager) Active() *Generation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

func (m *Manager) run(ctx context.Context, g *Generation, messages []llm.Message, model string) {
	started := time.Now()
	defer func() {
		m.mu.Lock()
		if m.active == g {
			m.active = nil
		}
		m.mu.Unlock()
		g.cancel()
		if m.tele != nil {
			m.tele.GenerationFinished()
		}
		close(g.deltas)
		close(g.done)
		m.logger.Printf("generation %s finished: %s after %v", g.ID, g.outcome.Status, time.Since(started))
	}()

	showReasoning := m.provider.SupportsReasoning(model)

	handle, err := m.provider.Stream(ctx, messages, model, llm.Options{})
	if err != nil {
		if ctx.Err() != nil {
			g.outcome = Outcome{Status: StatusStopped}
		} else {
			g.outcome = Outcome{Status: StatusFailed, Err: err.Error()}
		}
		m.recordLLM(model, started, g.outcome.Status == StatusStopped)
		return
	}

	var content, reasoning strings.Builder
	for ev := range handle.Events {
		d := Delta{Content: ev.ContentDelta}
		content.WriteString(ev.ContentDelta)
		if showReasoning && ev.ReasoningDelta != "" {
			reasoning.WriteString(ev.ReasoningDelta)
			d.Reasoning = ev.ReasoningDelta
		}
		if d.Content == "" && d.Reasoning == "" {
			continue
		}
		select {
		case g.deltas <- d:
		case <-ctx.Done():
			// Keep draining so the handle reaches its terminal state.
		}
	}

	streamErr := handle.Err()
	switch {
	case streamErr == nil && ctx.Err() == nil:
		text := content.String()
		if strings.TrimSpace(text) == "" {
			text = emptyCompletionFallback
		}
		g.outcome = Outcome{Status: StatusCompleted, Content: text, Reasoning: reasoning.String()}
	case ctx.Err() != nil || errors.Is(streamErr, context.Canceled):
		g.outcome = Outcome{Status: StatusStopped, Content: content.String(), Reasoning: reasoning.String()}
	default:
		g.outcome = Outcome{Status: StatusFailed, Content: content.String(), Err: streamErr.Error()}
	}
	m.recordLLM(model, started, g.outcome.Status != StatusFailed)
}

func (m *Manager) recordLLM(model string, started time.Time, success bool) {
	if m.tele == nil {
		return
	}
	m.tele.RecordLLMEvent(telemetry.LLMEvent{
		Model:     model,
		Operation: "chat",
		Duration:  time.Since(started),
		Success:   success,
	})
}
