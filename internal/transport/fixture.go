package transport

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/goccy/go-yaml"
)

// FixtureRule defines a canned response for one token URL (for file-based
// fixtures)
type FixtureRule struct {
	URL    string `yaml:"url"`
	Status int    `yaml:"status"` // defaults to 200
	Body   string `yaml:"body"`
}

// fixtureSet is the on-disk collection of fixture rules
type fixtureSet struct {
	Fixtures []FixtureRule `yaml:"fixtures"`
}

// FixtureFetcher serves canned credentials instead of performing network
// requests. It backs hermetic tests and local development.
type FixtureFetcher struct {
	mu        sync.Mutex
	responses map[string]fixtureResponse
	calls     map[string]int
}

type fixtureResponse struct {
	status int
	body   string
	err    error
}

// NewFixtureFetcher creates an empty fixture fetcher
func NewFixtureFetcher() *FixtureFetcher {
	return &FixtureFetcher{
		responses: make(map[string]fixtureResponse),
		calls:     make(map[string]int),
	}
}

// LoadFixtures builds a fixture fetcher from a YAML file of rules
func LoadFixtures(path string) (*FixtureFetcher, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture file %s: %w", path, err)
	}

	var set fixtureSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("failed to parse fixture file %s: %w", path, err)
	}

	f := NewFixtureFetcher()
	for _, rule := range set.Fixtures {
		if rule.URL == "" {
			return nil, fmt.Errorf("fixture rule in %s is missing a url", path)
		}
		status := rule.Status
		if status == 0 {
			status = 200
		}
		f.respond(rule.URL, status, rule.Body)
	}
	return f, nil
}

// Respond registers a successful credential response for url
func (f *FixtureFetcher) Respond(url, body string) {
	f.respond(url, 200, body)
}

// RespondStatus registers a response with an explicit status for url
func (f *FixtureFetcher) RespondStatus(url string, status int, body string) {
	f.respond(url, status, body)
}

// FailWith makes fetches for url fail with err
func (f *FixtureFetcher) FailWith(url string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[url] = fixtureResponse{err: err}
}

func (f *FixtureFetcher) respond(url string, status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[url] = fixtureResponse{status: status, body: body}
}

// Calls returns how many times url has been fetched
func (f *FixtureFetcher) Calls(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

// Fetch returns the canned response for url, mirroring HTTPFetcher's
// status handling
func (f *FixtureFetcher) Fetch(ctx context.Context, url string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[url]++

	resp, ok := f.responses[url]
	if !ok {
		return "", fmt.Errorf("no fixture for %s", url)
	}
	if resp.err != nil {
		return "", resp.err
	}
	if resp.status < 200 || resp.status >= 300 {
		return "", fmt.Errorf("token endpoint %s returned status %d", url, resp.status)
	}
	return resp.body, nil
}
