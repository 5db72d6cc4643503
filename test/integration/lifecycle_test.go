package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cloudbind/tokend/internal/config"
	"github.com/cloudbind/tokend/internal/server"
)

// TestDaemonLifecycle wires a registry from configuration with fixture
// transport, starts the status server, and drives it over real HTTP
func TestDaemonLifecycle(t *testing.T) {
	fixtureFile := filepath.Join(t.TempDir(), "fixtures.yaml")
	fixtures := `
fixtures:
  - url: https://auth.example.com/v1/token
    body: primary-credential
  - url: https://uploads.example.com/v1/token
    body: uploads-credential
`
	if err := os.WriteFile(fixtureFile, []byte(fixtures), 0o644); err != nil {
		t.Fatalf("Failed to write fixtures: %v", err)
	}

	cfg := config.Default()
	cfg.Server.HTTPPort = 18080
	cfg.PrimaryEndpoint = "https://auth.example.com/v1/token"
	cfg.Endpoints = []config.EndpointConfig{
		{Name: "uploads", URL: "https://uploads.example.com/v1/token"},
	}
	cfg.Transport.Type = "fixture"
	cfg.Transport.FixtureFile = fixtureFile
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Invalid config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	provider := config.NewProvider(cfg)
	fetcher, err := provider.Fetcher()
	if err != nil {
		t.Fatalf("Failed to create fetcher: %v", err)
	}

	registry := provider.Registry(fetcher, nil)
	defer registry.Close()

	directory, err := provider.RegisterEndpoints(ctx, registry)
	if err != nil {
		t.Fatalf("Failed to register endpoints: %v", err)
	}

	srv := server.New(server.Config{
		HTTPPort:  cfg.Server.HTTPPort,
		Directory: directory,
	})
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	defer srv.Stop(ctx)

	// Give the server a moment to start
	time.Sleep(100 * time.Millisecond)

	client := &http.Client{Timeout: 5 * time.Second}
	base := fmt.Sprintf("http://localhost:%d", cfg.Server.HTTPPort)

	// Health check
	resp, err := client.Get(base + "/healthz")
	if err != nil {
		t.Fatalf("Health check failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200 from /healthz, got %d", resp.StatusCode)
	}

	// Both tokens are listed as valid
	resp, err = client.Get(base + "/v1/tokens")
	if err != nil {
		t.Fatalf("Token list request failed: %v", err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d. Body: %s", resp.StatusCode, body)
	}

	var list struct {
		Tokens []struct {
			Name  string `json:"name"`
			State string `json:"state"`
		} `json:"tokens"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("Failed to decode token list: %v", err)
	}
	if len(list.Tokens) != 2 {
		t.Fatalf("Expected 2 tokens, got %d", len(list.Tokens))
	}
	for _, tok := range list.Tokens {
		if tok.State != "valid" {
			t.Errorf("Expected token %s to be valid, got %s", tok.Name, tok.State)
		}
	}

	// Credential bytes must never appear in a response
	responseStr := string(body)
	if strings.Contains(responseStr, "credential") {
		t.Errorf("Response leaked credential bytes: %s", responseStr)
	}

	// Primary is addressable by its reserved name
	resp, err = client.Get(base + "/v1/tokens/primary")
	if err != nil {
		t.Fatalf("Primary token request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200 for primary token, got %d", resp.StatusCode)
	}

	// Teardown destroys every token
	registry.Close()

	resp, err = client.Get(base + "/v1/tokens/uploads")
	if err != nil {
		t.Fatalf("Token request after teardown failed: %v", err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()

	var status struct {
		State    string `json:"state"`
		HasValue bool   `json:"has_value"`
	}
	if err := json.Unmarshal(body, &status); err != nil {
		t.Fatalf("Failed to decode token status: %v", err)
	}
	if status.State != "destroyed" {
		t.Errorf("Expected token to be destroyed after teardown, got %s", status.State)
	}
	if status.HasValue {
		t.Error("Destroyed token still reports a value")
	}
}
