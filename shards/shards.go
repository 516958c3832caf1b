package shards

import (
	"fmt"
	"strconv"
	"strings"
)

// This file resolves shard patterns. Datasets name their shards with brace
// patterns like "shard-{000000..000999}.tar"; Expand turns such a pattern
// into the concrete ordered list of paths and Set carries the list together
// with whatever size metadata the dataset ships.

// Set is a resolved shard list plus its size metadata.
type Set struct {
	URLs    []string
	Samples int // total samples across URLs, meaningful only when Sized
	Sized   bool
}

// FromPattern expands pattern and attaches sidecar size metadata when the
// dataset ships any.
func FromPattern(pattern string) (*Set, error) {
	total, sized, _, err := DatasetSize(pattern)
	if err != nil {
		return nil, err
	}
	return &Set{URLs: Expand(pattern), Samples: total, Sized: sized}, nil
}

// Expand expands a brace pattern into the full ordered list of shard URLs.
//
// Two brace forms are understood, following the usual shell rules:
//
//	{000..123}  numeric range, zero padding preserved
//	{a,b,c}     comma alternation
//
// Groups may nest and a pattern may hold several groups; the result is the
// cross product in left-to-right order. Text without braces passes through
// unchanged, as does any group that parses as neither form.
func Expand(pattern string) []string {
	open := strings.IndexByte(pattern, '{')
	if open < 0 {
		return []string{pattern}
	}
	close := matchingBrace(pattern, open)
	if close < 0 {
		return []string{pattern}
	}
	prefix, body, rest := pattern[:open], pattern[open+1:close], pattern[close+1:]
	alts, ok := alternatives(body)
	var out []string
	for _, alt := range alts {
		for _, mid := range Expand(alt) {
			if !ok {
				mid = "{" + mid + "}"
			}
			for _, tail := range Expand(rest) {
				out = append(out, prefix+mid+tail)
			}
		}
	}
	return out
}

// alternatives splits a brace body into its expansions. ok is false when
// the body is neither a numeric range nor a comma list, in which case the
// single returned element keeps its literal braces.
func alternatives(body string) ([]string, bool) {
	if nums, ok := numericRange(body); ok {
		return nums, true
	}
	parts := splitTop(body)
	if len(parts) < 2 {
		return []string{body}, false
	}
	return parts, true
}

// numericRange expands "lo..hi", padding with zeros to the endpoint width
// when an endpoint carries leading zeros. Descending ranges count down.
func numericRange(body string) ([]string, bool) {
	lo, hi, found := strings.Cut(body, "..")
	if !found {
		return nil, false
	}
	a, errA := strconv.Atoi(lo)
	b, errB := strconv.Atoi(hi)
	if errA != nil || errB != nil {
		return nil, false
	}
	width := 0
	if (len(lo) > 1 && lo[0] == '0') || (len(hi) > 1 && hi[0] == '0') {
		width = max(len(lo), len(hi))
	}
	step := 1
	if a > b {
		step = -1
	}
	nums := make([]string, 0, (b-a)*step+1)
	for n := a; ; n += step {
		nums = append(nums, fmt.Sprintf("%0*d", width, n))
		if n == b {
			break
		}
	}
	return nums, true
}

// splitTop splits on commas at brace depth zero.
func splitTop(body string) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(body); i++ {
		switch body[i] {
		case '{':
			depth++
		case '}':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, body[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, body[start:])
}

// matchingBrace returns the index of the brace closing the one at open, or
// -1 when the pattern is unbalanced.
func matchingBrace(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
