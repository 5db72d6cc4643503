package config

import (
	"sort"
	"sync"

	"github.com/cloudbind/tokend/internal/token"
)

// Directory indexes registered tokens by their configured name, for
// operational surfaces that address tokens by name rather than by
// endpoint identity
type Directory struct {
	mu     sync.RWMutex
	byName map[string]*token.Token
}

// NewDirectory creates an empty directory
func NewDirectory() *Directory {
	return &Directory{
		byName: make(map[string]*token.Token),
	}
}

// Add indexes tok under name, replacing any previous entry
func (d *Directory) Add(name string, tok *token.Token) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byName[name] = tok
}

// Names returns the indexed names in sorted order
func (d *Directory) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := make([]string, 0, len(d.byName))
	for name := range d.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the token indexed under name
func (d *Directory) Lookup(name string) (*token.Token, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	tok, ok := d.byName[name]
	return tok, ok
}
