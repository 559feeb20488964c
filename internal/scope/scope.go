package scope

import (
	"net/url"
	"strings"
	"sync"

	"github.com/Zykairotis/contextd/internal/cxerr"
)

// CollectionPrefix namespaces every collection the engine owns so foreign
// collections in a shared vector backend are never touched.
const CollectionPrefix = "ctx"

const nameDelimiter = "_"

// Manager derives collection names and expands dataset patterns. Naming is a
// pure function of (project, dataset); the only state is a collision registry
// so two inputs normalizing to the same collection fail loudly instead of
// silently sharing an index.
type Manager struct {
	mu   sync.Mutex
	seen map[string]string // collection name -> "project/dataset" that claimed it
}

func NewManager() *Manager {
	return &Manager{seen: make(map[string]string)}
}

// Normalize lowercases and folds every rune outside [a-z0-9_-] to '-'.
// Dots and slashes are replaced, not stripped, so "docs.example.com" and
// "docsexamplecom" stay distinct.
func Normalize(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return strings.Trim(b.String(), "-")
}

// CollectionName maps (project, dataset) to the backing collection. Two
// processes computing it in parallel agree because the function is pure; the
// registry only guards against normalization collisions within this process.
func (m *Manager) CollectionName(project, dataset string) (string, error) {
	if strings.TrimSpace(project) == "" || strings.TrimSpace(dataset) == "" {
		return "", cxerr.Newf(cxerr.KindConsistency, "scope", "project and dataset must be non-empty")
	}
	name := CollectionPrefix + nameDelimiter + Normalize(project) + nameDelimiter + Normalize(dataset)
	key := project + "/" + dataset
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.seen[name]; ok && prev != key {
		return "", cxerr.Newf(cxerr.KindConsistency, "scope",
			"collection name collision: %q and %q both normalize to %s", prev, key, name)
	}
	m.seen[name] = key
	return name, nil
}

// DatasetNameFromURL derives a default dataset name from a page URL host:
// https://docs.example.com/guide -> docs-example-com.
func DatasetNameFromURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", cxerr.Newf(cxerr.KindConsistency, "scope", "cannot derive dataset name from %q", raw)
	}
	host := u.Hostname()
	return Normalize(strings.ReplaceAll(host, ".", "-")), nil
}
