package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	streamDataPrefix = "data: "
	streamDoneMarker = "[DONE]"
)

// StreamEvent is one decoded delta from the completion stream. ContentDelta
// and ReasoningDelta may both be empty (keep-alive chunks); FinishReason is
// set on the final event of the stream.
type StreamEvent struct {
	ContentDelta   string
	ReasoningDelta string
	FinishReason   string
}

// StreamHandle exposes the event channel of one in-flight streaming
// completion. Events closes when the stream ends for any reason; Err reports
// a mid-stream transport failure after Events closes.
type StreamHandle struct {
	Events <-chan StreamEvent

	err  error
	done chan struct{}
}

// Err returns the terminal stream error, if any. Valid after Events closes.
func (h *StreamHandle) Err() error {
	<-h.done
	return h.err
}

// NewStreamHandle wraps an event channel in a handle for providers that do
// not stream over HTTP. finish must be called exactly once after the channel
// closes to publish the terminal error.
func NewStreamHandle(events <-chan StreamEvent) (*StreamHandle, func(error)) {
	h := &StreamHandle{Events: events, done: make(chan struct{})}
	return h, func(err error) {
		h.err = err
		close(h.done)
	}
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// Stream opens a chunked completion request and decodes the SSE-style
// data: lines into StreamEvents. A non-2xx status is returned synchronously;
// mid-stream failures surface through StreamHandle.Err.
func (p *OpenAICompatProvider) Stream(ctx context.Context, messages []Message, model string, opts Options) (*StreamHandle, error) {
	req, _, err := p.buildRequest(ctx, messages, model, opts, true)
	if err != nil {
		return nil, err
	}
	// The default client timeout would cut long generations short; rely on
	// ctx for cancellation instead.
	client := &http.Client{Transport: p.client.Transport}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("completion status %d: %s", resp.StatusCode, string(b))
	}

	events := make(chan StreamEvent)
	handle := &StreamHandle{Events: events, done: make(chan struct{})}

	go func() {
		defer close(handle.done)
		defer close(events)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			if ctx.Err() != nil {
				handle.err = ctx.Err()
				return
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" || !strings.HasPrefix(line, streamDataPrefix) {
				continue
			}
			data := line[len(streamDataPrefix):]
			if data == streamDoneMarker {
				return
			}
			var chunk streamChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				// Malformed event lines are skipped, matching lenient
				// SSE consumers; the stream itself stays usable.
				continue
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			ev := StreamEvent{
				ContentDelta:   chunk.Choices[0].Delta.Content,
				ReasoningDelta: chunk.Choices[0].Delta.ReasoningContent,
			}
			if fr := chunk.Choices[0].FinishReason; fr != nil {
				ev.FinishReason = *fr
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				handle.err = ctx.Err()
				return
			}
		}
		if err := scanner.Err(); err != nil {
			if ctx.Err() != nil {
				handle.err = ctx.Err()
				return
			}
			handle.err = fmt.Errorf("read stream: %w", err)
		}
	}()

	return handle, nil
}
