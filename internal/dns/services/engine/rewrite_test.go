package engine

import (
	"errors"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nullroute/nr-dns/internal/dns/domain"
)

func newRewriteEngine(t *testing.T, store RewriteStore) *Engine {
	t.Helper()
	e, err := New(Options{
		Classifier: &fakeClassifier{},
		Rewrites:   store,
		Addresses:  domain.AddressSets{},
	})
	assert.NoError(t, err)
	return e
}

func TestRewriteV4(t *testing.T) {
	e := newRewriteEngine(t, &fakeRewriteStore{v4: map[string]string{
		"93.184.216.34": "10.0.0.1",
	}})

	got, ok := e.RewriteV4(netip.MustParseAddr("93.184.216.34"))
	assert.True(t, ok)
	assert.Equal(t, netip.MustParseAddr("10.0.0.1"), got)

	// Unmatched sources pass through unchanged.
	src := netip.MustParseAddr("8.8.8.8")
	got, ok = e.RewriteV4(src)
	assert.False(t, ok)
	assert.Equal(t, src, got)
}

func TestRewriteV6(t *testing.T) {
	e := newRewriteEngine(t, &fakeRewriteStore{v6: map[string]string{
		"2001:db8::1": "fd00::1",
	}})

	got, ok := e.RewriteV6(netip.MustParseAddr("2001:db8::1"))
	assert.True(t, ok)
	assert.Equal(t, netip.MustParseAddr("fd00::1"), got)
}

func TestRewrite_WrongFamilyRefused(t *testing.T) {
	e := newRewriteEngine(t, &fakeRewriteStore{
		v4: map[string]string{"1.2.3.4": "10.0.0.1"},
		v6: map[string]string{"2001:db8::1": "fd00::1"},
	})

	src6 := netip.MustParseAddr("2001:db8::1")
	if _, ok := e.RewriteV4(src6); ok {
		t.Error("RewriteV4 must refuse IPv6 sources")
	}
	src4 := netip.MustParseAddr("1.2.3.4")
	if _, ok := e.RewriteV6(src4); ok {
		t.Error("RewriteV6 must refuse IPv4 sources")
	}
}

func TestRewrite_MalformedTargetRetainsOriginal(t *testing.T) {
	e := newRewriteEngine(t, &fakeRewriteStore{v4: map[string]string{
		"1.2.3.4": "not-an-address",
		"5.6.7.8": "fd00::1", // v6 target for a v4 record is also malformed
	}})

	src := netip.MustParseAddr("1.2.3.4")
	got, ok := e.RewriteV4(src)
	assert.False(t, ok)
	assert.Equal(t, src, got)

	src = netip.MustParseAddr("5.6.7.8")
	got, ok = e.RewriteV4(src)
	assert.False(t, ok)
	assert.Equal(t, src, got)
}

func TestRewrite_LookupErrorRetainsOriginal(t *testing.T) {
	e := newRewriteEngine(t, &fakeRewriteStore{err: errors.New("disk error")})
	src := netip.MustParseAddr("1.2.3.4")
	got, ok := e.RewriteV4(src)
	assert.False(t, ok)
	assert.Equal(t, src, got)
}

func TestRewrite_Idempotent(t *testing.T) {
	// A source already mapped to itself rewrites to the same address.
	e := newRewriteEngine(t, &fakeRewriteStore{v4: map[string]string{
		"10.0.0.1": "10.0.0.1",
	}})
	src := netip.MustParseAddr("10.0.0.1")
	got, ok := e.RewriteV4(src)
	assert.True(t, ok)
	assert.Equal(t, src, got)
}

func TestRewriteAnswers(t *testing.T) {
	e := newRewriteEngine(t, &fakeRewriteStore{
		v4: map[string]string{"93.184.216.34": "10.0.0.1"},
		v6: map[string]string{"2001:db8::1": "fd00::1"},
	})

	answers := []domain.Answer{
		{Name: "example.com", Addr: netip.MustParseAddr("93.184.216.34")},
		{Name: "example.com", Addr: netip.MustParseAddr("2001:db8::1")},
		{Name: "other.net", Addr: netip.MustParseAddr("8.8.8.8")},
	}
	n := e.RewriteAnswers(answers)
	assert.Equal(t, 2, n)
	assert.Equal(t, netip.MustParseAddr("10.0.0.1"), answers[0].Addr)
	assert.Equal(t, netip.MustParseAddr("fd00::1"), answers[1].Addr)
	assert.Equal(t, netip.MustParseAddr("8.8.8.8"), answers[2].Addr)
}

func TestRewriteAnswers_SelfMapIsNoOp(t *testing.T) {
	e := newRewriteEngine(t, &fakeRewriteStore{v4: map[string]string{
		"10.0.0.1": "10.0.0.1",
	}})
	answers := []domain.Answer{{Name: "x", Addr: netip.MustParseAddr("10.0.0.1")}}
	n := e.RewriteAnswers(answers)
	assert.Equal(t, 0, n, "rewriting to the identical address must not count as a change")
}
