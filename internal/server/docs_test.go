package server

import (
	"os"
	"strings"
	"testing"
)

func TestOpenAPIDocumentCoversRoutes(t *testing.T) {
	raw, err := os.ReadFile("../../docs/openapi.yaml")
	if err != nil {
		t.Fatalf("read openapi.yaml: %v", err)
	}
	doc := string(raw)

	for _, path := range []string{
		"/api/auth/signup:",
		"/api/auth/login:",
		"/api/me:",
		"/api/sources:",
		"/api/generation/stop:",
		"/api/conversations:",
		"/api/conversations/{id}/messages:",
		"/api/conversations/{id}/extract:",
		"/api/conversations/{id}/runs/stream:",
		"/api/conversations/{id}/chat/stream:",
		"/api/conversations/{id}/citations:",
		"/api/watches:",
		"/api/watches/{id}/samples:",
		"/api/fetch/preview:",
		"/healthz:",
		"/metrics:",
	} {
		if !strings.Contains(doc, path) {
			t.Errorf("openapi.yaml missing %s", strings.TrimSuffix(path, ":"))
		}
	}
}
