package update

import (
	"strconv"
	"strings"
)

// Version is a dotted sequence of non-negative integers.
type Version []int

// ParseVersion splits s on dots. Segments that do not parse as non-negative
// integers are skipped.
func ParseVersion(s string) Version {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ".")
	v := make(Version, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			continue
		}
		v = append(v, n)
	}
	return v
}

// Compare returns -1, 0 or 1. The shorter version is padded with zeros.
func Compare(a, b Version) int {
	n := max(len(a), len(b))
	for i := range n {
		x, y := a.at(i), b.at(i)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
	}
	return 0
}

func (v Version) at(i int) int {
	if i < len(v) {
		return v[i]
	}
	return 0
}

func (v Version) String() string {
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ".")
}

// IsNewer reports whether remote is strictly greater than current.
func IsNewer(current, remote string) bool {
	return Compare(ParseVersion(remote), ParseVersion(current)) > 0
}

// normalizeTag drops a single leading "v" or "V" from a release tag.
func normalizeTag(tag string) string {
	tag = strings.TrimSpace(tag)
	if strings.HasPrefix(tag, "v") || strings.HasPrefix(tag, "V") {
		return tag[1:]
	}
	return tag
}
