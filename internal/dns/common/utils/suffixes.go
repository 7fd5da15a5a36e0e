package utils

import "strings"

// MaxSuffixDepth bounds how many label-suffixes are enumerated for a single
// name. Real DNS names essentially never exceed this; deeper names simply
// stop enumerating and the shortest suffixes (those nearest the root) are
// not considered.
const MaxSuffixDepth = 16

// AppendSuffixes appends every label-suffix of name to dst, starting with the
// full name and stripping one leading label per step:
//
//	www.a.b.com -> www.a.b.com, a.b.com, b.com, com
//
// Each appended suffix is a view into name; no per-suffix allocation occurs.
// The input is expected to be canonical (see CanonicalName). Names that fail
// ValidName yield no suffixes.
func AppendSuffixes(dst []string, name string) []string {
	if !ValidName(name) {
		return dst
	}
	for n := 0; n < MaxSuffixDepth; n++ {
		dst = append(dst, name)
		i := strings.IndexByte(name, '.')
		if i < 0 || i+1 >= len(name) {
			break
		}
		name = name[i+1:]
	}
	return dst
}

// Suffixes is the allocating convenience form of AppendSuffixes.
func Suffixes(name string) []string {
	return AppendSuffixes(nil, name)
}

// ParentDomain returns everything after the first dot of name, and true when
// a non-empty parent exists. For "sub.example.com" it returns "example.com".
func ParentDomain(name string) (string, bool) {
	i := strings.IndexByte(name, '.')
	if i < 0 || i+1 >= len(name) {
		return "", false
	}
	return name[i+1:], true
}
