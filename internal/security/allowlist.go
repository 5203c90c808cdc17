// allowlist.go — Navigation origin allowlist.
// Every navigate command is checked against this list before it touches the
// socket. The list is seeded from configuration, extended (union only) by
// the authenticating peer, and never shrinks for the life of the process.
// Loopback hosts are always allowed and are not part of the configured set
// reported to the peer.
package security

import (
	"net/url"
	"strings"
	"sync"
)

// loopbackHosts are always allowed regardless of configuration.
var loopbackHosts = map[string]bool{
	"localhost": true,
	"127.0.0.1": true,
	"::1":       true,
}

// Allowlist is a concurrent-safe set of origin specs.
// Entries are matched by host: exact equality or subdomain suffix.
type Allowlist struct {
	mu      sync.RWMutex
	entries []string
	seen    map[string]bool
}

// NewAllowlist creates an allowlist seeded with the given origins.
// Duplicates and blank entries are collapsed.
func NewAllowlist(seeds []string) *Allowlist {
	a := &Allowlist{seen: make(map[string]bool)}
	a.add(seeds)
	return a
}

func (a *Allowlist) add(origins []string) {
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "" || a.seen[o] {
			continue
		}
		a.seen[o] = true
		a.entries = append(a.entries, o)
	}
}

// Extend unions the given origins into the list. The list never shrinks.
func (a *Allowlist) Extend(origins []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.add(origins)
}

// Entries returns a snapshot of the configured origin specs, excluding the
// implicit loopback hosts. Never nil: the handshake reply serializes this
// as a JSON array.
func (a *Allowlist) Entries() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, 0, len(a.entries))
	out = append(out, a.entries...)
	return out
}

// IsAllowed reports whether navigation to rawURL is permitted.
// Unparseable URLs are refused. file: URLs are always permitted (local
// files carry no remote origin). Loopback hosts are always permitted.
// Otherwise the URL's host must equal an entry's host or be a subdomain
// of it.
func (a *Allowlist) IsAllowed(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if u.Scheme == "file" {
		return true
	}
	host := u.Hostname()
	if host == "" {
		return false
	}
	if loopbackHosts[host] {
		return true
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, entry := range a.entries {
		if matchesEntry(host, entry) {
			return true
		}
	}
	return false
}

// matchesEntry compares a URL host against one origin spec. Bare entries
// (no scheme) are parsed as https:// so "example.com" and
// "https://example.com" behave identically.
func matchesEntry(host, entry string) bool {
	spec := entry
	if !strings.Contains(spec, "://") {
		spec = "https://" + spec
	}
	u, err := url.Parse(spec)
	if err != nil {
		return false
	}
	entryHost := u.Hostname()
	if entryHost == "" {
		return false
	}
	return host == entryHost || strings.HasSuffix(host, "."+entryHost)
}
