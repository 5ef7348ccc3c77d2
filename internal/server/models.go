package server

import "github.com/procurelab/bidwise/internal/sourcing"

// HTTPError is the uniform error body returned by the API.
type HTTPError struct {
	Error string `json:"error"`
}

type AuthSignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type TokenResponse struct {
	Token string `json:"token"`
}

type ConversationCreateRequest struct {
	Title string `json:"title"`
}

type ConversationRenameRequest struct {
	Title string `json:"title"`
}

type MessageResponse struct {
	ID        string                     `json:"id"`
	Role      string                     `json:"role"`
	Content   string                     `json:"content"`
	Reasoning string                     `json:"reasoning,omitempty"`
	Status    string                     `json:"status"`
	Sources   []sourcing.SourceReference `json:"sources,omitempty"`
	CreatedAt string                     `json:"createdAt"`
}

// SourcingRunRequest starts a fan-out run. Items and sources are optional;
// missing items fall back to extraction from the conversation transcript and
// missing sources default to the full configured catalog.
type SourcingRunRequest struct {
	Items        []sourcing.Item `json:"items,omitempty"`
	SourceIDs    []string        `json:"sourceIds,omitempty"`
	DimensionIDs []string        `json:"dimensionIds,omitempty"`
	ProjectName  string          `json:"projectName,omitempty"`
}

type ChatStreamRequest struct {
	Content string `json:"content"`
	Model   string `json:"model,omitempty"`
	// Sources are citations to attach to the assistant's reply, e.g. when the
	// user asks a follow-up about specific references from an earlier run.
	Sources []sourcing.SourceReference `json:"sources,omitempty"`
}

type ExtractRequest struct {
	// Document is optional raw document content appended to the transcript
	// before extraction (e.g. an uploaded bill of materials).
	Document string `json:"document,omitempty"`
	// DocumentName routes Document through the matching parser; empty means
	// the content is already plain text.
	DocumentName string `json:"documentName,omitempty"`
	// Force drops the memoized result before extracting.
	Force bool `json:"force,omitempty"`
}

type PriceWatchCreateRequest struct {
	ItemName     string `json:"itemName"`
	ScheduleCron string `json:"scheduleCron,omitempty"`
}

type FetchPreviewRequest struct {
	URL string `json:"url"`
}
