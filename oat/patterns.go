/*Copyright (C) 2026 wyd20162016. All Rights Reserved.*/
package oat

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
	"rsc.io/binaryregexp"
)

// BytePattern is a compiled hex pattern plus the longest run of literal
// bytes in it. The literal run is located with a plain memory search first
// so the regular expression only has to run on small windows.
type BytePattern struct {
	len    int
	rawre  string
	re     *binaryregexp.Regexp
	needle []byte
}

func (p *BytePattern) String() string { return p.rawre }

// CompileBytePattern translates a yara-style hex pattern, like:
//
//	{ 6F 61 74 0A 30 3? 3? 00 }
//
// to a binaryregexp expression, like:
//
//	\x6F\x61\x74\x0A\x30[\x30-\x3F][\x30-\x3F]\x00
//
// Supported tokens are literal bytes, "??" for any byte, "X?" for a high
// nibble, "[lo-hi]" for a gap and "(AA|BB)" for alternatives.
func CompileBytePattern(pattern string) (*BytePattern, error) {
	pattern = strings.TrimSpace(pattern)
	if !strings.HasPrefix(pattern, "{") || !strings.HasSuffix(pattern, "}") {
		return nil, errors.Errorf("pattern %q must be enclosed in braces", pattern)
	}
	pattern = strings.ToUpper(strings.ReplaceAll(strings.Trim(pattern, "{}"), " ", ""))

	var (
		re     strings.Builder
		p      = &BytePattern{}
		run    []byte
		needle []byte
	)
	breakRun := func() {
		if len(run) > len(needle) {
			needle = slices.Clone(run)
		}
		run = run[:0]
	}

	for i := 0; i < len(pattern); {
		switch pattern[i] {
		case '[':
			end := strings.IndexByte(pattern[i:], ']')
			if end == -1 {
				return nil, errors.New("unbalanced [")
			}
			lo, hi, ok := strings.Cut(pattern[i+1:i+end], "-")
			if !ok {
				return nil, errors.New("gap without a dash")
			}
			if _, err := strconv.Atoi(lo); err != nil {
				return nil, errors.Wrap(err, "gap lower bound")
			}
			n, err := strconv.Atoi(hi)
			if err != nil {
				return nil, errors.Wrap(err, "gap upper bound")
			}
			re.WriteString(".{" + lo + "," + hi + "}")
			p.len += n
			i += end + 1
			breakRun()
			continue
		case '(':
			end := strings.IndexByte(pattern[i:], ')')
			if end == -1 {
				return nil, errors.New("unbalanced (")
			}
			choices := strings.Split(pattern[i+1:i+end], "|")
			re.WriteByte('(')
			for j, c := range choices {
				if len(c) != 2 || !isHex(c) {
					return nil, errors.Errorf("choice %q is not a byte", c)
				}
				if j != 0 {
					re.WriteByte('|')
				}
				re.WriteString(`\x` + c)
			}
			re.WriteByte(')')
			p.len++
			i += end + 1
			breakRun()
			continue
		}

		if i+1 >= len(pattern) {
			return nil, errors.New("odd number of nibbles")
		}
		hi, lo := pattern[i:i+1], pattern[i+1:i+2]
		i += 2
		p.len++
		switch {
		case hi == "?" && lo == "?":
			re.WriteByte('.')
			breakRun()
		case hi == "?":
			return nil, errors.New("cannot mask the high nibble alone")
		case lo == "?":
			if !isHex(hi) {
				return nil, errors.Errorf("%q is not a hex digit", hi)
			}
			re.WriteString(`[\x` + hi + `0-\x` + hi + `F]`)
			breakRun()
		case isHex(hi + lo):
			b, _ := strconv.ParseUint(hi+lo, 16, 8)
			re.WriteString(`\x` + hi + lo)
			run = append(run, byte(b))
		default:
			return nil, errors.Errorf("unexpected %q", hi+lo)
		}
	}
	breakRun()

	p.rawre = re.String()
	p.needle = needle
	var err error
	// wildcards must match '\n' too
	if p.re, err = binaryregexp.Compile("(?s)" + p.rawre); err != nil {
		return nil, errors.Wrap(err, "compiling pattern")
	}
	return p, nil
}

func isHex(s string) bool {
	for _, c := range s {
		if !strings.ContainsRune("0123456789ABCDEF", c) {
			return false
		}
	}
	return s != ""
}

// FindAll returns the sorted, distinct offsets where p matches data.
func (p *BytePattern) FindAll(data []byte) []int {
	var matches []int
	addAll := func(start, end int) {
		for _, m := range p.re.FindAllIndex(data[start:end], -1) {
			matches = append(matches, start+m[0])
		}
	}

	if len(p.needle) == 0 {
		addAll(0, len(data))
		return matches
	}

	for from := 0; from < len(data); {
		idx := bytes.Index(data[from:], p.needle)
		if idx == -1 {
			break
		}
		hit := from + idx
		start, end := hit-p.len, hit+p.len+len(p.needle)
		if start < 0 {
			start = 0
		}
		if end > len(data) {
			end = len(data)
		}
		addAll(start, end)
		from = hit + 1
	}
	slices.Sort(matches)
	return slices.Compact(matches)
}

var headerPattern = mustCompile("{ 6F 61 74 0A 30 3? 3? 00 }")

func mustCompile(pattern string) *BytePattern {
	p, err := CompileBytePattern(pattern)
	if err != nil {
		panic(err)
	}
	return p
}

// HeaderCandidate is a place in a byte blob that starts with an OAT
// signature.
type HeaderCandidate struct {
	Offset    int
	Version   string
	Supported bool
}

// FindHeaders scans data for OAT signatures of any version, for carving
// images out of memory dumps. Supported is set for versions NewImage's
// layout applies to and when a whole header fits.
func FindHeaders(data []byte) []HeaderCandidate {
	var out []HeaderCandidate
	for _, off := range headerPattern.FindAll(data) {
		version := string(data[off+offVersion : off+offChecksum-1])
		out = append(out, HeaderCandidate{
			Offset:    off,
			Version:   version,
			Supported: len(data)-off >= HeaderSize && IsValidHeader(data[off:]),
		})
	}
	return out
}
