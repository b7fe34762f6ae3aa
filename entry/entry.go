// Package entry defines the value stored behind a key: a tagged union of
// a string or an ordered list, with an optional expiry.
package entry

import (
	"container/list"
	"strings"
)

// Kind tags which variant an Entry holds. The tag is immutable for the
// lifetime of an entry: a list cannot silently become a string or vice
// versa.
type Kind uint8

const (
	// KindString holds a single byte-string value.
	KindString Kind = iota
	// KindList holds an ordered sequence of byte-string elements.
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindList:
		return "list"
	default:
		return "unknown"
	}
}

// Entry is one key's stored value. ExpireAt is an absolute UnixNano
// deadline on a monotonic clock; zero means "no expiry". List entries
// use container/list so push/pop at either end is O(1), the way the
// underlying spec requires.
type Entry struct {
	Kind     Kind
	Str      string
	List     *list.List
	ExpireAt int64
}

// NewString builds a String-variant entry with an absolute deadline
// (0 = no expiry).
func NewString(v string, expireAt int64) *Entry {
	return &Entry{Kind: KindString, Str: v, ExpireAt: expireAt}
}

// NewList builds a List-variant entry seeded with a single element.
func NewList(first string, expireAt int64) *Entry {
	l := list.New()
	l.PushFront(first)
	return &Entry{Kind: KindList, List: l, ExpireAt: expireAt}
}

// Expired reports whether the entry's deadline has passed at "now"
// (UnixNano). An entry with ExpireAt == 0 never expires.
func (e *Entry) Expired(now int64) bool {
	return e.ExpireAt != 0 && e.ExpireAt <= now
}

// Serialized renders the entry's value the way a provider write-through
// expects it: raw bytes for a string, newline-joined elements for a list
// (head to tail).
func (e *Entry) Serialized() string {
	if e.Kind == KindString {
		return e.Str
	}
	var b strings.Builder
	for el := e.List.Front(); el != nil; el = el.Next() {
		if el != e.List.Front() {
			b.WriteByte('\n')
		}
		b.WriteString(el.Value.(string))
	}
	return b.String()
}

// ListSlice returns a copy of the list's elements head to tail. Used by
// LRANGE, which needs a plain slice.
func (e *Entry) ListSlice() []string {
	out := make([]string, 0, e.List.Len())
	for el := e.List.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(string))
	}
	return out
}
