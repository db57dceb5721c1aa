package market

import (
	"fmt"
	"sort"
)

// CodeTable is an immutable, bidirectional mapping between the members of a
// closed enumeration and the codes used by one wire format.
//
// Several members may share a code. In that case the first entry given to
// the constructor is the one returned by Parse.
type CodeTable[T comparable] struct {
	name   string
	codes  map[T]string
	values map[string]T
}

type entry[T comparable] struct {
	value T
	code  string
}

func newCodeTable[T comparable](name string, entries ...entry[T]) CodeTable[T] {
	t := CodeTable[T]{
		name:   name,
		codes:  make(map[T]string, len(entries)),
		values: make(map[string]T, len(entries)),
	}
	for _, e := range entries {
		if _, ok := t.codes[e.value]; ok {
			panic(fmt.Sprintf("market: %s declares %v twice", name, e.value))
		}
		t.codes[e.value] = e.code
		if _, ok := t.values[e.code]; !ok {
			t.values[e.code] = e.value
		}
	}
	return t
}

// Code returns the code of v. The second result is false when v has no code
// in this table.
func (t CodeTable[T]) Code(v T) (string, bool) {
	code, ok := t.codes[v]
	return code, ok
}

// MustCode is like Code but returns an error naming the table on a miss.
func (t CodeTable[T]) MustCode(v T) (string, error) {
	code, ok := t.codes[v]
	if !ok {
		return "", fmt.Errorf("%s has no code for %v", t.name, v)
	}
	return code, nil
}

// Parse returns the member identified by code.
func (t CodeTable[T]) Parse(code string) (T, bool) {
	v, ok := t.values[code]
	return v, ok
}

// Codes returns every code known to the table in lexical order.
func (t CodeTable[T]) Codes() []string {
	codes := make([]string, 0, len(t.values))
	for code := range t.values {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Has reports whether code belongs to the table.
func (t CodeTable[T]) Has(code string) bool {
	_, ok := t.values[code]
	return ok
}
