package pattern

import (
	"regexp"
	"sync"

	"github.com/nullroute/nr-dns/internal/dns/common/log"
)

const (
	// catchAll is the bucket for patterns whose first matchable character
	// cannot be predicted from the pattern text.
	catchAll   = 256
	numBuckets = 257

	// softLimit triggers a capacity warning; loading continues regardless.
	softLimit = 100_000
)

// Source streams raw pattern rows to fn in insertion order.
type Source func(fn func(pattern string) error) error

// compiled pairs a pattern's original text with its compiled form.
type compiled struct {
	raw string
	re  *regexp.Regexp
}

// Matcher files compiled block patterns into buckets keyed by a conservative
// first-character analysis, so matching a name examines one bucket plus the
// catch-all instead of every pattern. The bucket array is built exactly once
// under the latch and read-only afterwards, so Match needs no locking.
type Matcher struct {
	once    sync.Once
	source  Source
	logger  log.Logger
	buckets [numBuckets][]compiled
	total   int
	failed  int
}

// New constructs a Matcher over the given pattern source. Loading is deferred
// to the first Match call and happens at most once.
func New(source Source, logger log.Logger) *Matcher {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Matcher{source: source, logger: logger}
}

// Match evaluates the patterns bucketed under name's first character, then
// the catch-all bucket. Within a bucket the earliest-inserted matching
// pattern wins; a match in the name's bucket wins over any catch-all match.
func (m *Matcher) Match(name string) (string, bool) {
	m.once.Do(m.load)
	if name == "" {
		return "", false
	}
	b := int(foldByte(name[0]))
	for _, c := range m.buckets[b] {
		if c.re.MatchString(name) {
			return c.raw, true
		}
	}
	for _, c := range m.buckets[catchAll] {
		if c.re.MatchString(name) {
			return c.raw, true
		}
	}
	return "", false
}

// load streams and compiles every pattern. Compile failures are logged and
// skipped; they never abort the load.
func (m *Matcher) load() {
	err := m.source(func(pat string) error {
		m.total++
		re, cerr := regexp.Compile(pat)
		if cerr != nil {
			m.failed++
			m.logger.Warn(map[string]any{
				"pattern": pat,
				"error":   cerr,
			}, "skipping uncompilable block pattern")
			return nil
		}
		b := bucketIndex(pat)
		m.buckets[b] = append(m.buckets[b], compiled{raw: pat, re: re})
		return nil
	})
	if err != nil {
		m.logger.Error(map[string]any{"error": err}, "pattern load aborted")
	}
	if m.total > softLimit {
		m.logger.Warn(map[string]any{
			"patterns": m.total,
			"limit":    softLimit,
		}, "block pattern count exceeds soft limit")
	}
	m.logger.Info(map[string]any{
		"patterns": m.total - m.failed,
		"failed":   m.failed,
	}, "block pattern cache loaded")
}

// Counts returns how many patterns loaded and how many failed to compile.
func (m *Matcher) Counts() (loaded, failed int) {
	m.once.Do(m.load)
	return m.total - m.failed, m.failed
}

// bucketIndex picks the bucket for a pattern from its leading characters:
// a leading anchor is skipped, a literal ASCII alphanumeric selects that
// character's bucket unless the next character is '?' or '*', and any other
// leading character falls into the catch-all. Nothing past the second
// character is examined: an unanchored pattern or a top-level alternation is
// still filed under its first literal character, so it is tried only against
// names that begin with that character.
func bucketIndex(pat string) int {
	if len(pat) > 0 && pat[0] == '^' {
		pat = pat[1:]
	}
	if len(pat) == 0 {
		return catchAll
	}
	c := foldByte(pat[0])
	if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') {
		// A literal first character only anchors the bucket when it is not
		// quantified into optionality (e.g. "a?b" can match at 'b').
		if len(pat) > 1 {
			switch pat[1] {
			case '?', '*':
				return catchAll
			}
		}
		return int(c)
	}
	return catchAll
}

// foldByte lowercases a single ASCII byte.
func foldByte(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}
