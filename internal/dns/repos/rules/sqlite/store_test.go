package sqlite

import (
	"path/filepath"
	"testing"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/nullroute/nr-dns/internal/dns/common/log"
	"github.com/nullroute/nr-dns/internal/dns/common/utils"
	"github.com/nullroute/nr-dns/internal/dns/repos/rules"
)

var fullSchema = []string{
	`CREATE TABLE block_regex (pattern TEXT PRIMARY KEY);`,
	`CREATE TABLE block_exact (domain TEXT PRIMARY KEY COLLATE NOCASE);`,
	`CREATE TABLE block_wildcard (domain TEXT PRIMARY KEY COLLATE NOCASE);`,
	`CREATE TABLE fqdn_dns_allow (domain TEXT PRIMARY KEY COLLATE NOCASE);`,
	`CREATE TABLE fqdn_dns_block (domain TEXT PRIMARY KEY COLLATE NOCASE);`,
	`CREATE TABLE domain_alias (source TEXT PRIMARY KEY COLLATE NOCASE, target TEXT NOT NULL);`,
	`CREATE TABLE ip_rewrite_v4 (source TEXT PRIMARY KEY, target TEXT NOT NULL);`,
	`CREATE TABLE ip_rewrite_v6 (source TEXT PRIMARY KEY, target TEXT NOT NULL);`,
}

// createDB builds a rule database at a temp path, runs the given DDL, and
// executes seed statements with their arguments.
func createDB(t *testing.T, schema []string, seed map[string][]any) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.db")
	conn, err := sqlite.OpenConn(path, sqlite.OpenReadWrite|sqlite.OpenCreate|sqlite.OpenWAL|sqlite.OpenURI)
	if err != nil {
		t.Fatalf("create test db: %v", err)
	}
	defer conn.Close()
	for _, ddl := range schema {
		if err := sqlitex.ExecuteTransient(conn, ddl, nil); err != nil {
			t.Fatalf("ddl %q: %v", ddl, err)
		}
	}
	for stmt, args := range seed {
		if err := sqlitex.ExecuteTransient(conn, stmt, &sqlitex.ExecOptions{Args: args}); err != nil {
			t.Fatalf("seed %q: %v", stmt, err)
		}
	}
	return path
}

func openStore(t *testing.T, path string) *Store {
	t.Helper()
	s, err := New(Options{Path: path, PoolSize: 2, Logger: log.NewNoopLogger()})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_ExactBlock(t *testing.T) {
	path := createDB(t, fullSchema, map[string][]any{
		`INSERT INTO block_exact (domain) VALUES (?1);`: {"ads.example.com"},
	})
	s := openStore(t, path)

	hit, err := s.ExactBlock("ads.example.com")
	if err != nil || !hit {
		t.Fatalf("ExactBlock(present) = (%v, %v), want hit", hit, err)
	}
	// Exact means exact: a subdomain of a blocked name is not blocked.
	hit, err = s.ExactBlock("www.ads.example.com")
	if err != nil || hit {
		t.Fatalf("ExactBlock(subdomain) = (%v, %v), want miss", hit, err)
	}
}

func TestStore_ExactBlock_CaseInsensitive(t *testing.T) {
	path := createDB(t, fullSchema, map[string][]any{
		`INSERT INTO block_exact (domain) VALUES (?1);`: {"Ads.Example.COM"},
	})
	s := openStore(t, path)

	hit, err := s.ExactBlock("ads.example.com")
	if err != nil || !hit {
		t.Fatalf("case-folded lookup = (%v, %v), want hit", hit, err)
	}
}

func TestStore_LongestSuffix(t *testing.T) {
	path := createDB(t, fullSchema, map[string][]any{
		`INSERT INTO block_wildcard (domain) VALUES (?1), (?2);`: {"example.com", "b.example.com"},
	})
	s := openStore(t, path)

	row, ok, err := s.LongestSuffix(rules.SuffixBlockWildcard, utils.Suffixes("a.b.example.com"))
	if err != nil {
		t.Fatalf("LongestSuffix error: %v", err)
	}
	if !ok || row != "b.example.com" {
		t.Errorf("LongestSuffix = (%q, %v), want longest row b.example.com", row, ok)
	}

	_, ok, err = s.LongestSuffix(rules.SuffixBlockWildcard, utils.Suffixes("other.net"))
	if err != nil || ok {
		t.Errorf("unrelated name should miss, got ok=%v err=%v", ok, err)
	}

	_, ok, err = s.LongestSuffix(rules.SuffixBlockWildcard, nil)
	if err != nil || ok {
		t.Errorf("empty suffix set should miss, got ok=%v err=%v", ok, err)
	}
}

func TestStore_SuffixTables(t *testing.T) {
	path := createDB(t, fullSchema, map[string][]any{
		`INSERT INTO fqdn_dns_allow (domain) VALUES (?1);`: {"trusted.xyz"},
		`INSERT INTO fqdn_dns_block (domain) VALUES (?1);`: {"xyz"},
	})
	s := openStore(t, path)

	row, ok, err := s.LongestSuffix(rules.SuffixDNSAllow, utils.Suffixes("trusted.xyz"))
	if err != nil || !ok || row != "trusted.xyz" {
		t.Errorf("allow lookup = (%q, %v, %v)", row, ok, err)
	}
	row, ok, err = s.LongestSuffix(rules.SuffixDNSBlock, utils.Suffixes("trusted.xyz"))
	if err != nil || !ok || row != "xyz" {
		t.Errorf("block lookup = (%q, %v, %v)", row, ok, err)
	}
}

func TestStore_Alias(t *testing.T) {
	path := createDB(t, fullSchema, map[string][]any{
		`INSERT INTO domain_alias (source, target) VALUES (?1, ?2);`: {"intel.com", "keweon.center"},
	})
	s := openStore(t, path)

	target, ok, err := s.Alias("intel.com")
	if err != nil || !ok || target != "keweon.center" {
		t.Errorf("Alias(exact) = (%q, %v, %v)", target, ok, err)
	}
	_, ok, err = s.Alias("www.intel.com")
	if err != nil || ok {
		t.Errorf("Alias is exact-match only, got ok=%v err=%v", ok, err)
	}
}

func TestStore_Rewrites(t *testing.T) {
	path := createDB(t, fullSchema, map[string][]any{
		`INSERT INTO ip_rewrite_v4 (source, target) VALUES (?1, ?2);`: {"93.184.216.34", "10.0.0.1"},
		`INSERT INTO ip_rewrite_v6 (source, target) VALUES (?1, ?2);`: {"2001:db8::1", "fd00::1"},
	})
	s := openStore(t, path)

	target, ok, err := s.RewriteV4("93.184.216.34")
	if err != nil || !ok || target != "10.0.0.1" {
		t.Errorf("RewriteV4 = (%q, %v, %v)", target, ok, err)
	}
	target, ok, err = s.RewriteV6("2001:db8::1")
	if err != nil || !ok || target != "fd00::1" {
		t.Errorf("RewriteV6 = (%q, %v, %v)", target, ok, err)
	}
	_, ok, err = s.RewriteV4("8.8.8.8")
	if err != nil || ok {
		t.Errorf("unmatched rewrite should miss, ok=%v err=%v", ok, err)
	}
}

func TestStore_OptionalTablesMissing(t *testing.T) {
	// Only the required tables exist; alias and rewrite degrade cleanly.
	path := createDB(t, fullSchema[:5], nil)
	s := openStore(t, path)

	if _, ok, err := s.Alias("intel.com"); ok || err != nil {
		t.Errorf("disabled alias should short-circuit to miss, ok=%v err=%v", ok, err)
	}
	if _, ok, err := s.RewriteV4("1.2.3.4"); ok || err != nil {
		t.Errorf("disabled rewrite should short-circuit to miss, ok=%v err=%v", ok, err)
	}
	stats := s.Stats()
	if stats.AliasEnabled || stats.RewriteV4 || stats.RewriteV6 {
		t.Errorf("optional features should be off: %+v", stats)
	}
}

func TestStore_MissingRequiredTableIsFatal(t *testing.T) {
	// No block_exact table at all.
	path := createDB(t, fullSchema[:1], nil)
	_, err := New(Options{Path: path, PoolSize: 1, Logger: log.NewNoopLogger()})
	if err == nil {
		t.Fatal("store without required tables should fail to open")
	}
}

func TestStore_MissingDatabaseIsFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.db")
	_, err := New(Options{Path: path, PoolSize: 1, Logger: log.NewNoopLogger()})
	if err == nil {
		t.Fatal("opening a nonexistent database should fail")
	}
}

func TestStore_IterateAndCount(t *testing.T) {
	path := createDB(t, fullSchema, map[string][]any{
		`INSERT INTO block_exact (domain) VALUES (?1), (?2), (?3);`: {"a.com", "b.com", "c.com"},
		`INSERT INTO block_regex (pattern) VALUES (?1), (?2);`:      {`^ads\.`, `\.tracker\.`},
	})
	s := openStore(t, path)

	n, err := s.CountExact()
	if err != nil || n != 3 {
		t.Errorf("CountExact = (%d, %v), want 3", n, err)
	}

	var domains []string
	err = s.IterateExact(func(name string) error {
		domains = append(domains, name)
		return nil
	})
	if err != nil || len(domains) != 3 {
		t.Errorf("IterateExact saw %v (err %v), want 3 rows", domains, err)
	}

	var patterns []string
	err = s.IteratePatterns(func(p string) error {
		patterns = append(patterns, p)
		return nil
	})
	if err != nil || len(patterns) != 2 {
		t.Fatalf("IteratePatterns saw %v (err %v), want 2 rows", patterns, err)
	}
	if patterns[0] != `^ads\.` {
		t.Errorf("patterns should stream in insertion order, got %v", patterns)
	}
}

func TestStore_Stats(t *testing.T) {
	path := createDB(t, fullSchema, map[string][]any{
		`INSERT INTO block_wildcard (domain) VALUES (?1);`: {"privacy.com"},
		`INSERT INTO fqdn_dns_block (domain) VALUES (?1);`: {"xyz"},
	})
	s := openStore(t, path)

	stats := s.Stats()
	if stats.WildcardRows != 1 || stats.BlockRows != 1 || stats.ExactRows != 0 {
		t.Errorf("unexpected row counts: %+v", stats)
	}
	if stats.PoolSize != 2 {
		t.Errorf("pool size = %d, want 2", stats.PoolSize)
	}
	if !stats.AliasEnabled || !stats.RewriteV4 || !stats.RewriteV6 {
		t.Errorf("optional features should be on with full schema: %+v", stats)
	}
}

func TestStore_CloseIdempotent(t *testing.T) {
	path := createDB(t, fullSchema, nil)
	s := openStore(t, path)
	if err := s.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
