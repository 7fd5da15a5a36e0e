// Package sqlite implements rules.Store over a read-only SQLite rule
// database. The engine never writes; the database is populated and swapped
// by external tooling.
package sqlite

import (
	"fmt"
	"runtime"
	"strings"
	"sync"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/nullroute/nr-dns/internal/dns/common/log"
	"github.com/nullroute/nr-dns/internal/dns/repos/rules"
)

// DefaultPoolSize is the reference number of pooled read handles.
const DefaultPoolSize = 32

const busyTimeoutMillis = 5000

// cacheSizeKiB is passed to PRAGMA cache_size as a KiB hint (negative
// value). Failure to apply it is a warning, not an error.
const cacheSizeKiB = 262144 // 256 MiB per handle

// Store is a fixed-size pool of read-only SQLite handles. Each handle owns
// its own prepared-statement cache; a handle serves one lookup at a time and
// is returned to the free list afterwards.
type Store struct {
	free      chan *sqlite.Conn
	conns     []*sqlite.Conn
	logger    log.Logger
	poolSize  int
	closeOnce sync.Once
	closeErr  error

	aliasEnabled     bool
	rewriteV4Enabled bool
	rewriteV6Enabled bool
}

// Options configures New.
type Options struct {
	// Path of the rule database. Must exist; the store never creates it.
	Path string
	// PoolSize is the number of read handles; DefaultPoolSize when <= 0.
	PoolSize int
	Logger   log.Logger
}

// requiredQueries must prepare successfully at init or the store is unusable.
var requiredQueries = []string{
	"SELECT 1 FROM block_exact WHERE domain = ?1 LIMIT 1;",
	"SELECT pattern FROM block_regex;",
	"SELECT domain FROM block_wildcard WHERE domain = ?1 LIMIT 1;",
	"SELECT domain FROM fqdn_dns_allow WHERE domain = ?1 LIMIT 1;",
	"SELECT domain FROM fqdn_dns_block WHERE domain = ?1 LIMIT 1;",
}

// The optional queries probe features that degrade cleanly when their table
// is missing from the database.
const (
	queryAlias     = "SELECT target FROM domain_alias WHERE source = ?1 LIMIT 1;"
	queryRewriteV4 = "SELECT target FROM ip_rewrite_v4 WHERE source = ?1 LIMIT 1;"
	queryRewriteV6 = "SELECT target FROM ip_rewrite_v6 WHERE source = ?1 LIMIT 1;"
)

// New opens the rule database and populates the handle pool. The sequence is
// one-shot: configure the journal on a primary handle, validate the required
// tables, probe the optional ones, then open and warm the read-only pool.
// Classification must not begin until New has returned.
func New(opts Options) (*Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	poolSize := opts.PoolSize
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}

	s := &Store{
		free:     make(chan *sqlite.Conn, poolSize),
		conns:    make([]*sqlite.Conn, 0, poolSize),
		logger:   logger,
		poolSize: poolSize,
	}

	// Primary handle: read-write so the WAL journal can be established for
	// the pool that follows. It is closed again before serving begins.
	primary, err := sqlite.OpenConn(opts.Path, sqlite.OpenReadWrite|sqlite.OpenWAL|sqlite.OpenURI|sqlite.OpenNoMutex)
	if err != nil {
		return nil, fmt.Errorf("open rule database %s: %w", opts.Path, err)
	}
	if err := s.configure(primary, true); err != nil {
		primary.Close()
		return nil, err
	}
	if err := s.validateRequired(primary); err != nil {
		primary.Close()
		return nil, err
	}
	s.probeOptional(primary)
	if err := primary.Close(); err != nil {
		return nil, fmt.Errorf("close primary handle: %w", err)
	}

	for i := 0; i < poolSize; i++ {
		conn, err := sqlite.OpenConn(opts.Path, sqlite.OpenReadOnly|sqlite.OpenWAL|sqlite.OpenURI|sqlite.OpenNoMutex)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("open pool handle %d: %w", i, err)
		}
		if err := s.configure(conn, false); err != nil {
			conn.Close()
			s.Close()
			return nil, err
		}
		s.warmUp(conn, i)
		s.conns = append(s.conns, conn)
		s.free <- conn
	}

	logger.Info(map[string]any{
		"path":       opts.Path,
		"pool_size":  poolSize,
		"alias":      s.aliasEnabled,
		"rewrite_v4": s.rewriteV4Enabled,
		"rewrite_v6": s.rewriteV6Enabled,
	}, "rule store opened")
	return s, nil
}

// configure applies the per-handle tuning hints. Journal settings only apply
// on the writable primary; the cache-size hint warns instead of failing.
func (s *Store) configure(conn *sqlite.Conn, primary bool) error {
	if primary {
		if err := execPragma(conn, "PRAGMA journal_mode = WAL;"); err != nil {
			s.logger.Warn(map[string]any{"error": err}, "could not switch rule database to WAL")
		}
		if err := execPragma(conn, "PRAGMA synchronous = NORMAL;"); err != nil {
			s.logger.Warn(map[string]any{"error": err}, "could not set synchronous mode")
		}
	}
	if err := execPragma(conn, fmt.Sprintf("PRAGMA busy_timeout = %d;", busyTimeoutMillis)); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	if err := execPragma(conn, "PRAGMA temp_store = MEMORY;"); err != nil {
		return fmt.Errorf("set temp store: %w", err)
	}
	// Large rule databases fault-storm under mmap; force it off.
	if err := execPragma(conn, "PRAGMA mmap_size = 0;"); err != nil {
		return fmt.Errorf("disable mmap: %w", err)
	}
	if err := execPragma(conn, fmt.Sprintf("PRAGMA cache_size = -%d;", cacheSizeKiB)); err != nil {
		s.logger.Warn(map[string]any{"error": err}, "could not apply cache size hint")
	}
	if err := execPragma(conn, fmt.Sprintf("PRAGMA threads = %d;", runtime.NumCPU())); err != nil {
		s.logger.Warn(map[string]any{"error": err}, "could not apply worker thread hint")
	}
	return nil
}

// validateRequired prepares each required statement once; a failure here is
// fatal for the store.
func (s *Store) validateRequired(conn *sqlite.Conn) error {
	for _, q := range requiredQueries {
		stmt, _, err := conn.PrepareTransient(q)
		if err != nil {
			return fmt.Errorf("required table missing or unreadable (%s): %w", q, err)
		}
		if err := stmt.Finalize(); err != nil {
			return fmt.Errorf("finalize probe statement: %w", err)
		}
	}
	return nil
}

// probeOptional prepares the alias and rewrite statements; a failure disables
// the corresponding feature and is logged once.
func (s *Store) probeOptional(conn *sqlite.Conn) {
	probe := func(q, feature string) bool {
		stmt, _, err := conn.PrepareTransient(q)
		if err != nil {
			s.logger.Warn(map[string]any{
				"feature": feature,
				"error":   err,
			}, "optional rule table unavailable; feature disabled")
			return false
		}
		_ = stmt.Finalize()
		return true
	}
	s.aliasEnabled = probe(queryAlias, "alias")
	s.rewriteV4Enabled = probe(queryRewriteV4, "rewrite_v4")
	s.rewriteV6Enabled = probe(queryRewriteV6, "rewrite_v6")
}

// warmUp issues one trivial lookup per handle to prime the page cache.
func (s *Store) warmUp(conn *sqlite.Conn, i int) {
	stmt := conn.Prep("SELECT 1 FROM block_exact LIMIT 1;")
	_, err := stmt.Step()
	if rerr := stmt.Reset(); err == nil {
		err = rerr
	}
	if err != nil {
		s.logger.Debug(map[string]any{"handle": i, "error": err}, "pool warm-up query failed")
	}
}

// acquire takes a free handle; release returns it. A handle is used by one
// lookup at a time, so its prepared statements are single-threaded by
// construction.
func (s *Store) acquire() *sqlite.Conn { return <-s.free }

func (s *Store) release(conn *sqlite.Conn) { s.free <- conn }

// ExactBlock reports whether name has a row in block_exact.
func (s *Store) ExactBlock(name string) (bool, error) {
	conn := s.acquire()
	defer s.release(conn)

	stmt := conn.Prep("SELECT 1 FROM block_exact WHERE domain = ?1 LIMIT 1;")
	stmt.BindText(1, name)
	return stepAndReset(stmt)
}

// LongestSuffix returns the longest suffix of the query present in the table.
// The statement is composed per suffix count and served from the handle's
// statement cache; an indexed IN probe replaces the suffix LIKE scan.
func (s *Store) LongestSuffix(table rules.SuffixTable, suffixes []string) (string, bool, error) {
	if len(suffixes) == 0 {
		return "", false, nil
	}
	conn := s.acquire()
	defer s.release(conn)

	stmt := conn.Prep(suffixQuery(table.TableName(), len(suffixes)))
	for i, suf := range suffixes {
		stmt.BindText(i+1, suf)
	}
	return textResult(stmt)
}

// CountExact returns the block_exact row count.
func (s *Store) CountExact() (uint64, error) {
	conn := s.acquire()
	defer s.release(conn)
	return s.countRows(conn, "block_exact")
}

// IterateExact streams every block_exact domain to fn.
func (s *Store) IterateExact(fn func(name string) error) error {
	conn := s.acquire()
	defer s.release(conn)

	return sqlitex.ExecuteTransient(conn, "SELECT domain FROM block_exact;", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			return fn(stmt.ColumnText(0))
		},
	})
}

// IteratePatterns streams every block_regex pattern to fn in insertion order.
func (s *Store) IteratePatterns(fn func(pattern string) error) error {
	conn := s.acquire()
	defer s.release(conn)

	return sqlitex.ExecuteTransient(conn, "SELECT pattern FROM block_regex ORDER BY rowid;", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			return fn(stmt.ColumnText(0))
		},
	})
}

// Alias returns the alias target for an exact source match.
func (s *Store) Alias(name string) (string, bool, error) {
	if !s.aliasEnabled {
		return "", false, nil
	}
	conn := s.acquire()
	defer s.release(conn)

	stmt := conn.Prep(queryAlias)
	stmt.BindText(1, name)
	return textResult(stmt)
}

// RewriteV4 returns the replacement for an IPv4 source address.
func (s *Store) RewriteV4(src string) (string, bool, error) {
	if !s.rewriteV4Enabled {
		return "", false, nil
	}
	return s.rewrite(queryRewriteV4, src)
}

// RewriteV6 returns the replacement for an IPv6 source address.
func (s *Store) RewriteV6(src string) (string, bool, error) {
	if !s.rewriteV6Enabled {
		return "", false, nil
	}
	return s.rewrite(queryRewriteV6, src)
}

func (s *Store) rewrite(query, src string) (string, bool, error) {
	conn := s.acquire()
	defer s.release(conn)

	stmt := conn.Prep(query)
	stmt.BindText(1, src)
	return textResult(stmt)
}

// Stats reads cheap per-table counts and the optional-feature flags.
func (s *Store) Stats() rules.StoreStats {
	conn := s.acquire()
	defer s.release(conn)

	out := rules.StoreStats{
		PoolSize:     s.poolSize,
		AliasEnabled: s.aliasEnabled,
		RewriteV4:    s.rewriteV4Enabled,
		RewriteV6:    s.rewriteV6Enabled,
	}
	out.RegexRows, _ = s.countRows(conn, "block_regex")
	out.ExactRows, _ = s.countRows(conn, "block_exact")
	out.WildcardRows, _ = s.countRows(conn, "block_wildcard")
	out.AllowRows, _ = s.countRows(conn, "fqdn_dns_allow")
	out.BlockRows, _ = s.countRows(conn, "fqdn_dns_block")
	return out
}

// Close drains the pool and closes every handle, finalizing their prepared
// statements. Safe to call more than once.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		// Drain so no in-flight lookup loses its handle mid-step.
		for range s.conns {
			<-s.free
		}
		for _, conn := range s.conns {
			if err := conn.Close(); err != nil && s.closeErr == nil {
				s.closeErr = err
			}
		}
		s.conns = nil
	})
	return s.closeErr
}

// countRows counts the rows of one table on an already-acquired handle.
func (s *Store) countRows(conn *sqlite.Conn, table string) (uint64, error) {
	stmt := conn.Prep("SELECT COUNT(*) FROM " + table + ";")
	defer stmt.Reset()
	hasRow, err := stmt.Step()
	if err != nil || !hasRow {
		return 0, err
	}
	n := stmt.ColumnInt64(0)
	if n < 0 {
		n = 0
	}
	return uint64(n), nil
}

// suffixQuery composes the IN probe for k suffixes:
//
//	SELECT domain FROM t WHERE domain IN (?1, ..., ?k)
//	ORDER BY length(domain) DESC LIMIT 1
func suffixQuery(table string, k int) string {
	var b strings.Builder
	b.WriteString("SELECT domain FROM ")
	b.WriteString(table)
	b.WriteString(" WHERE domain IN (?1")
	for i := 2; i <= k; i++ {
		fmt.Fprintf(&b, ", ?%d", i)
	}
	b.WriteString(") ORDER BY length(domain) DESC LIMIT 1;")
	return b.String()
}

// stepAndReset runs a bound existence probe and resets it for reuse.
func stepAndReset(stmt *sqlite.Stmt) (bool, error) {
	hasRow, err := stmt.Step()
	if rerr := stmt.Reset(); err == nil {
		err = rerr
	}
	return hasRow && err == nil, err
}

// textResult reads the first column of a bound single-row query and resets
// the statement for reuse.
func textResult(stmt *sqlite.Stmt) (string, bool, error) {
	hasRow, err := stmt.Step()
	if err != nil {
		_ = stmt.Reset()
		return "", false, err
	}
	var out string
	if hasRow {
		out = stmt.ColumnText(0)
	}
	if rerr := stmt.Reset(); rerr != nil {
		return "", false, rerr
	}
	return out, hasRow, nil
}

// execPragma runs a tuning statement, draining any row it reports back.
func execPragma(conn *sqlite.Conn, pragma string) error {
	return sqlitex.ExecuteTransient(conn, pragma, &sqlitex.ExecOptions{
		ResultFunc: func(*sqlite.Stmt) error { return nil },
	})
}

var _ rules.Store = (*Store)(nil)
