// Package filter implements blocklist-based destination filtering with
// subdomain-aware matching.
package filter

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"

	ahocorasick "github.com/BobuSumisu/aho-corasick"

	"github.com/codefionn/durchlauf/durchlauf-srv/logger"
)

// Blocklist is a shared, read-mostly set of blocked hostnames and IP
// literals. Lookups use an Aho-Corasick trie over the entries; candidate
// matches are verified for an exact or dot-label suffix match, so blocking
// example.com also blocks any of its subdomains.
//
// Mutation (Add/Remove/LoadFromFile) rebuilds the trie under the write lock;
// concurrent lookups always observe a consistent entry set.
type Blocklist struct {
	mu            sync.RWMutex
	enabled       bool
	caseSensitive bool
	entries       map[string]struct{}
	domains       []string
	trie          *ahocorasick.Trie
}

// NewBlocklist creates an empty blocklist. When enabled is false, IsBlocked
// always returns false regardless of entries.
func NewBlocklist(enabled, caseSensitive bool) *Blocklist {
	return &Blocklist{
		enabled:       enabled,
		caseSensitive: caseSensitive,
		entries:       make(map[string]struct{}),
	}
}

// LoadFromFile reads entries from a newline-delimited file. Blank lines and
// lines starting with '#' are ignored. A missing file is logged and leaves
// the blocklist unchanged. Returns the number of entries loaded.
func (b *Blocklist) LoadFromFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warn("Blocklist file %s not found", path)
			return 0, nil
		}
		return 0, fmt.Errorf("failed to open blocklist file %s: %w", path, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			logger.Error("Error closing blocklist file: %v", closeErr)
		}
	}()

	var loaded []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		loaded = append(loaded, line)
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("failed to read blocklist file %s: %w", path, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, entry := range loaded {
		b.entries[b.normalize(entry)] = struct{}{}
	}
	b.rebuildLocked()

	logger.Info("Loaded %d entries from blocklist %s", len(loaded), path)
	return len(loaded), nil
}

// IsBlocked reports whether host matches an entry exactly or is a subdomain
// of an entry. Returns false when filtering is disabled or host is empty.
func (b *Blocklist) IsBlocked(host string) bool {
	if host == "" {
		return false
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.enabled || len(b.entries) == 0 {
		return false
	}

	check := b.normalize(host)
	if _, ok := b.entries[check]; ok {
		return true
	}

	if b.trie == nil {
		return false
	}
	for _, match := range b.trie.MatchString(check) {
		entry := b.domains[match.Pattern()]
		if check == entry || strings.HasSuffix(check, "."+entry) {
			return true
		}
	}
	return false
}

// Add inserts a host into the blocklist at runtime.
func (b *Blocklist) Add(host string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[b.normalize(host)] = struct{}{}
	b.rebuildLocked()
}

// Remove deletes a host from the blocklist at runtime.
func (b *Blocklist) Remove(host string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, b.normalize(host))
	b.rebuildLocked()
}

// Len returns the number of entries.
func (b *Blocklist) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// Entries returns a copy of the current entry set.
func (b *Blocklist) Entries() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.entries))
	for entry := range b.entries {
		out = append(out, entry)
	}
	return out
}

func (b *Blocklist) normalize(host string) string {
	if b.caseSensitive {
		return host
	}
	return strings.ToLower(host)
}

// rebuildLocked reconstructs the matching trie from the entry set. Caller
// must hold the write lock.
func (b *Blocklist) rebuildLocked() {
	if len(b.entries) == 0 {
		b.domains = nil
		b.trie = nil
		return
	}
	domains := make([]string, 0, len(b.entries))
	for entry := range b.entries {
		domains = append(domains, entry)
	}
	b.domains = domains
	b.trie = ahocorasick.NewTrieBuilder().AddStrings(domains).Build()
}
