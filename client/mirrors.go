package client

// Mirrors maps short names to the public npm registry mirrors the
// client knows about. The map is exported so callers can assemble
// their own rotation by name.
var Mirrors = map[string]string{
	"nodejitsu":  "https://registry.nodejitsu.com/",
	"npmjs":      "https://registry.npmjs.org/",
	"npmjsau":    "http://registry.npmjs.org.au/",
	"npmjseu":    "http://registry.npmjs.eu/",
	"npmjspt":    "http://registry.npmjs.pt/",
	"strongloop": "http://npm.strongloop.com/",
}

// DefaultRegistry is the primary registry used when none is configured.
const DefaultRegistry = "https://registry.nodejitsu.com/"

// DefaultMirrors is the fallback rotation tried, in order, after the
// primary registry fails.
var DefaultMirrors = []string{
	Mirrors["npmjs"],
	Mirrors["npmjseu"],
	Mirrors["npmjsau"],
	Mirrors["npmjspt"],
	Mirrors["strongloop"],
}

// MirrorPool hands out candidate base URLs for a single logical
// request: the primary registry first, then each mirror in order.
// Duplicates and empty entries are removed up front so a mirror list
// that repeats the primary never costs a second attempt against the
// same host. A pool is consumed by one request cycle; Reset restores
// the full sequence for the next cycle.
type MirrorPool struct {
	urls []string
	next int
}

// NewMirrorPool builds a pool from the primary registry and the mirror
// rotation, deduplicated in first-seen order.
func NewMirrorPool(primary string, mirrors []string) *MirrorPool {
	seen := make(map[string]struct{}, len(mirrors)+1)
	urls := make([]string, 0, len(mirrors)+1)
	for _, u := range append([]string{primary}, mirrors...) {
		if u == "" {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		urls = append(urls, u)
	}
	return &MirrorPool{urls: urls}
}

// Next returns the next base URL to try. ok is false once the pool is
// exhausted.
func (p *MirrorPool) Next() (url string, ok bool) {
	if p.next >= len(p.urls) {
		return "", false
	}
	url = p.urls[p.next]
	p.next++
	return url, true
}

// Reset restores the full sequence so a new cycle starts from the
// primary registry again.
func (p *MirrorPool) Reset() {
	p.next = 0
}

// Len reports how many distinct base URLs the pool holds.
func (p *MirrorPool) Len() int {
	return len(p.urls)
}
