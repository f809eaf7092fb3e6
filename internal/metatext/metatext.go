// Package metatext parses the LVM2 text metadata grammar: nested
// "name { key = value }" blocks, scalar numbers and strings, and
// bracketed arrays of quoted strings and numbers. It is a set of substring-search
// primitives operating on an immutable slice, not a real tokenizer —
// that is how the format's own reference parser works, and callers
// rely on the same quirks (e.g. a key that is a suffix of another key
// can shadow it).
package metatext

import (
	"strconv"
	"strings"

	"github.com/s0up4200/lvm-activate/internal/errs"
)

// MaxKeyLen is the longest identifier GetBlocks will accept before
// failing with VG_METADATA.
const MaxKeyLen = 127

// ArrayElement is one position of a GetKVArray result. Each position
// has a single, position-dependent type: either a quoted string or an
// unsigned integer.
type ArrayElement struct {
	IsString bool
	Str      string
	Num      uint64
}

// Array is the result of GetKVArray.
type Array struct {
	Elements []ArrayElement
}

// Block is one named block extracted by GetBlocks.
type Block struct {
	Name    string
	Content string
}

// StripComments removes everything from a '#' to end-of-line, leaving
// the newlines themselves intact so callers can still reason about
// line-oriented constructs if needed.
func StripComments(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			lines[i] = line[:idx]
		}
	}
	return strings.Join(lines, "\n")
}

// GetNum finds "<key> = " and parses the base-10 unsigned integer that
// follows, returning the slice remaining after the number.
func GetNum(p, key string) (uint64, string, error) {
	needle := key + " = "
	idx := strings.Index(p, needle)
	if idx < 0 {
		return 0, p, errs.New(errs.KindVGMetadata, "missing key "+key)
	}
	valStart := idx + len(needle)
	end := valStart
	for end < len(p) && p[end] >= '0' && p[end] <= '9' {
		end++
	}
	if end == valStart {
		return 0, p, errs.New(errs.KindVGMetadata, "no number for key "+key)
	}
	n, err := strconv.ParseUint(p[valStart:end], 10, 64)
	if err != nil {
		return 0, p, errs.Wrap(errs.KindVGMetadata, err, "parse number for key "+key)
	}
	return n, p[end:], nil
}

// GetStr finds "<key> = " then reads a double-quoted run, returning
// the unquoted copy and the slice remaining after the closing quote.
func GetStr(p, key string) (string, string, error) {
	needle := key + " = "
	idx := strings.Index(p, needle)
	if idx < 0 {
		return "", p, errs.New(errs.KindVGMetadata, "missing key "+key)
	}
	rest := p[idx+len(needle):]
	if len(rest) == 0 || rest[0] != '"' {
		return "", p, errs.New(errs.KindVGMetadata, "expected quoted string for key "+key)
	}
	end := strings.IndexByte(rest[1:], '"')
	if end < 0 {
		return "", p, errs.New(errs.KindVGMetadata, "unterminated string for key "+key)
	}
	val := rest[1 : 1+end]
	return val, rest[1+end+1:], nil
}

// GetKVArray finds "<key> = [", strips whitespace from the bracketed
// contents and splits on ','. An empty array ("key = []") yields a
// zero-element Array, not an error.
func GetKVArray(p, key string) (Array, string, error) {
	needle := key + " = ["
	idx := strings.Index(p, needle)
	if idx < 0 {
		return Array{}, p, errs.New(errs.KindVGMetadata, "missing key "+key)
	}
	rest := p[idx+len(needle):]
	closeIdx := strings.IndexByte(rest, ']')
	if closeIdx < 0 {
		return Array{}, p, errs.New(errs.KindVGMetadata, "unterminated array for key "+key)
	}
	inner, after := rest[:closeIdx], rest[closeIdx+1:]

	var scratch strings.Builder
	scratch.Grow(len(inner))
	for _, r := range inner {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			continue
		}
		scratch.WriteRune(r)
	}
	stripped := scratch.String()
	if stripped == "" {
		return Array{}, after, nil
	}

	var arr Array
	for _, part := range strings.Split(stripped, ",") {
		if part == "" {
			continue
		}
		if part[0] == '"' {
			arr.Elements = append(arr.Elements, ArrayElement{IsString: true, Str: strings.Trim(part, "\"")})
			continue
		}
		n, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return Array{}, p, errs.Wrap(errs.KindVGMetadata, err, "parse array element for key "+key)
		}
		arr.Elements = append(arr.Elements, ArrayElement{Num: n})
	}
	return arr, after, nil
}

// GetBlock finds "<key> {" and returns the substring up to the
// matching '}', honouring nested braces.
func GetBlock(p, key string) (string, string, error) {
	needle := key + " {"
	idx := strings.Index(p, needle)
	if idx < 0 {
		return "", p, errs.New(errs.KindVGMetadata, "missing block "+key)
	}
	start := idx + len(needle)
	content, consumed, err := extractBraceMatched(p[start:])
	if err != nil {
		return "", p, errs.Wrap(errs.KindVGMetadata, err, "block "+key)
	}
	return content, p[start+consumed:], nil
}

// GetBlocks parses a sequence of anonymous "name { ... }" pairs,
// returning them in source order. Used for the physical_volumes{} and
// logical_volumes{} bodies.
func GetBlocks(p string) ([]Block, error) {
	var blocks []Block
	i := 0
	for {
		for i < len(p) && isSpace(p[i]) {
			i++
		}
		if i >= len(p) {
			break
		}
		start := i
		for i < len(p) && !isSpace(p[i]) && p[i] != '{' {
			i++
		}
		name := p[start:i]
		if len(name) == 0 {
			return nil, errs.New(errs.KindVGMetadata, "empty block name")
		}
		if len(name) > MaxKeyLen {
			return nil, errs.New(errs.KindVGMetadata, "block name exceeds 127 bytes")
		}
		for i < len(p) && isSpace(p[i]) {
			i++
		}
		if i >= len(p) || p[i] != '{' {
			return nil, errs.New(errs.KindVGMetadata, "expected block body after "+name)
		}
		i++
		content, consumed, err := extractBraceMatched(p[i:])
		if err != nil {
			return nil, errs.Wrap(errs.KindVGMetadata, err, "block "+name)
		}
		i += consumed
		blocks = append(blocks, Block{Name: name, Content: content})
	}
	return blocks, nil
}

// CheckFlag reports whether the quoted-string array under key contains
// an exact-match element equal to flag.
func CheckFlag(p, key, flag string) bool {
	arr, _, err := GetKVArray(p, key)
	if err != nil {
		return false
	}
	for _, e := range arr.Elements {
		if e.IsString && e.Str == flag {
			return true
		}
	}
	return false
}

func extractBraceMatched(s string) (content string, consumed int, err error) {
	depth := 1
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[:i], i + 1, nil
			}
		}
	}
	return "", 0, errs.New(errs.KindVGMetadata, "unmatched brace")
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
