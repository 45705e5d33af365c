// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package index

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/pdiddy/crates-admin/pkg/types"
)

// maxLineSize bounds a single index line. Crates with hundreds of features
// produce lines well past bufio's 64 KiB default.
const maxLineSize = 16 << 20

// errInvalidUTF8 rejects lines that encoding/json would otherwise decode
// with replacement characters.
var errInvalidUTF8 = errors.New("line is not valid UTF-8")

// ParseError reports an index line that is not a valid record.
type ParseError struct {
	Path string
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("%s:%d: %v", e.Path, e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParseRecord decodes a single index line.
func ParseRecord(line []byte) (types.IndexRecord, error) {
	var rec types.IndexRecord
	if err := json.Unmarshal(line, &rec); err != nil {
		return types.IndexRecord{}, err
	}
	return rec, nil
}

// ScanRecords calls fn for every non-blank line of r, in order. It stops at
// the first line that fails to parse or the first error fn returns. Parse
// failures are returned as *ParseError with a 1-based line number.
func ScanRecords(r io.Reader, fn func(types.IndexRecord) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	n := 0
	for sc.Scan() {
		n++
		line := sc.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		if !utf8.Valid(line) {
			return &ParseError{Line: n, Err: errInvalidUTF8}
		}
		rec, err := ParseRecord(line)
		if err != nil {
			return &ParseError{Line: n, Err: err}
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("reading line %d: %w", n+1, err)
	}
	return nil
}

// ParseRecords reads every record from r. Blank lines are dropped.
func ParseRecords(r io.Reader) ([]types.IndexRecord, error) {
	var recs []types.IndexRecord
	err := ScanRecords(r, func(rec types.IndexRecord) error {
		recs = append(recs, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return recs, nil
}

// SortDeps puts deps in canonical order. The order is total, so the result
// does not depend on the input order.
func SortDeps(deps []types.Dependency) {
	sort.SliceStable(deps, func(i, j int) bool {
		return CompareDeps(deps[i], deps[j]) < 0
	})
}

// CompareDeps orders dependencies by name, then req, features, optional,
// default_features, target, kind, package and finally any unmodelled
// members. Absent target, kind and package sort before present ones.
func CompareDeps(a, b types.Dependency) int {
	if c := strings.Compare(a.Name, b.Name); c != 0 {
		return c
	}
	if c := strings.Compare(a.Req, b.Req); c != 0 {
		return c
	}
	if c := compareStringSlices(a.Features, b.Features); c != 0 {
		return c
	}
	if c := compareBool(a.Optional, b.Optional); c != 0 {
		return c
	}
	if c := compareBool(a.DefaultFeatures, b.DefaultFeatures); c != 0 {
		return c
	}
	if c := compareOptional(a.Target, b.Target); c != 0 {
		return c
	}
	if c := compareKind(a.Kind, b.Kind); c != 0 {
		return c
	}
	if c := strings.Compare(a.Package, b.Package); c != 0 {
		return c
	}
	return compareExtra(a.Extra, b.Extra)
}

func compareExtra(a, b []types.ExtraField) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := strings.Compare(a[i].Key, b[i].Key); c != 0 {
			return c
		}
		if c := bytes.Compare(a[i].Value, b[i].Value); c != 0 {
			return c
		}
	}
	return len(a) - len(b)
}

func compareStringSlices(a, b []string) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := strings.Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return len(a) - len(b)
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	default:
		return 1
	}
}

func compareOptional(a, b *string) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	default:
		return strings.Compare(*a, *b)
	}
}

var kindRank = map[types.DependencyKind]int{
	types.KindNormal: 0,
	types.KindBuild:  1,
	types.KindDev:    2,
}

func compareKind(a, b *types.DependencyKind) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	ra, oka := kindRank[*a]
	rb, okb := kindRank[*b]
	if oka && okb {
		return ra - rb
	}
	return strings.Compare(string(*a), string(*b))
}

// EncodeRecords serializes recs as newline-delimited JSON, one record per
// line, each ending in a single '\n'. HTML characters are not escaped so
// requirements like ">=1.0" stay readable. Nil collections are written as
// empty ones.
func EncodeRecords(recs []types.IndexRecord) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for _, rec := range recs {
		if err := enc.Encode(canonical(rec)); err != nil {
			return nil, fmt.Errorf("encoding %s: %w", rec.ID(), err)
		}
	}
	return buf.Bytes(), nil
}

func canonical(rec types.IndexRecord) types.IndexRecord {
	if rec.Features == nil {
		rec.Features = map[string][]string{}
	}
	deps := make([]types.Dependency, len(rec.Deps))
	for i, d := range rec.Deps {
		if d.Features == nil {
			d.Features = []string{}
		}
		deps[i] = d
	}
	rec.Deps = deps
	return rec
}
