// Package jsonpath parses the "a[b][0][]" nested-path mini-language used
// by JSON and form request-item keys, and assembles parsed paths into a
// JSON tree built out of Go's untyped JSON representation
// (map[string]interface{} / []interface{}).
package jsonpath

import (
	"fmt"
	"strconv"
	"strings"

	errgo "gopkg.in/errgo.v1"
)

const specialChars = "=@:;[]\\"

// ComponentKind distinguishes the two PathComponent shapes.
type ComponentKind int

const (
	// Key addresses an object member.
	Key ComponentKind = iota
	// Index addresses an array element; Index == -1 means "append".
	Index
)

// Span is a byte range into the original path string, used only for
// error messages.
type Span struct {
	Start, End int
	Valid      bool
}

// Component is one element of a parsed path.
type Component struct {
	Kind  ComponentKind
	Key   string
	Index int // valid when Kind == Index; -1 means append
	Span  Span
}

func unescape(s string) string {
	var out strings.Builder
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		if ch == '\\' && i+1 < len(runes) {
			next := runes[i+1]
			if strings.ContainsRune(specialChars, next) {
				out.WriteRune(next)
				i++
				continue
			}
		}
		out.WriteRune(ch)
	}
	return out.String()
}

type delim struct {
	pos int
	ch  rune
}

// ParsePath parses a JSON path such as "foo[bar][0]" or "[][foo]" into a
// sequence of Components.
func ParsePath(raw string) ([]Component, error) {
	var delims []delim
	backslashes := 0
	runeIdx := make([]int, 0, len(raw)+1) // byte offset of each rune, for span reporting in bytes
	pos := 0
	for _, ch := range raw {
		runeIdx = append(runeIdx, pos)
		if ch == '\\' {
			backslashes++
		} else {
			if (ch == '[' || ch == ']') && backslashes%2 == 0 {
				delims = append(delims, delim{pos, ch})
			}
			backslashes = 0
		}
		pos += len(string(ch))
	}

	if len(delims) == 0 {
		return []Component{{Kind: Key, Key: unescape(raw)}}, nil
	}
	if len(delims)%2 != 0 {
		return nil, errgo.Newf("unbalanced number of brackets %q", raw)
	}

	var prevClose = -1
	havePrevClose := false
	for i := 0; i+1 < len(delims); i += 2 {
		open, close := delims[i], delims[i+1]
		if havePrevClose {
			if open.pos-prevClose > 1 {
				return nil, errgo.Newf("unexpected string after closing bracket at index %d", prevClose+1)
			}
		}
		if open.ch == ']' {
			return nil, errgo.Newf("unexpected closing bracket at index %d", open.pos)
		}
		if close.ch == '[' {
			return nil, errgo.Newf("unexpected opening bracket at index %d", close.pos)
		}
		prevClose = close.pos
		havePrevClose = true
	}
	if havePrevClose && prevClose != len(raw)-1 {
		return nil, errgo.Newf("unexpected string after closing bracket at index %d", prevClose+1)
	}

	var path []Component

	// Literal text before the first '[', or a leading "[string]".
	if delims[0].pos > 0 {
		path = append(path, Component{Kind: Key, Key: unescape(raw[:delims[0].pos])})
	} else {
		key := raw[delims[0].pos+1 : delims[1].pos]
		if key != "" {
			if _, err := strconv.ParseUint(key, 10, 64); err != nil {
				// raw starts with "[string]": httpie treats this as an
				// implicit empty top-level key.
				path = append(path, Component{Kind: Key, Key: ""})
			}
		} else {
			path = append(path, Component{Kind: Key, Key: ""})
		}
	}

	for i := 0; i+1 < len(delims); i += 2 {
		start, end := delims[i].pos, delims[i+1].pos
		comp := raw[start+1 : end]
		span := Span{Start: start, End: end, Valid: true}
		if n, err := strconv.ParseUint(comp, 10, 64); err == nil {
			path = append(path, Component{Kind: Index, Index: int(n), Span: span})
		} else if comp == "" {
			path = append(path, Component{Kind: Index, Index: -1, Span: span})
		} else if strings.HasPrefix(comp, `\`) {
			if _, err := strconv.ParseUint(comp[1:], 10, 64); err == nil {
				path = append(path, Component{Kind: Key, Key: comp[1:], Span: span})
				continue
			}
			path = append(path, Component{Kind: Key, Key: unescape(comp), Span: span})
		} else {
			path = append(path, Component{Kind: Key, Key: unescape(comp), Span: span})
		}
	}

	return path, nil
}

// TypeError is raised by SetValue when a path component's access kind
// (key vs. index) clashes with the JSON value found at that point.
type TypeError struct {
	Root    interface{}
	Comp    Component
	RawPath string
}

func typeName(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "bool"
	case float64, int:
		return "number"
	case string:
		return "string"
	case []interface{}:
		return "array"
	case map[string]interface{}:
		return "object"
	}
	return "unknown"
}

func (e *TypeError) Error() string {
	var accessType, expected string
	var start, end int
	switch e.Comp.Kind {
	case Index:
		if e.Comp.Index == -1 {
			accessType = "append"
		} else {
			accessType = "index"
		}
		expected = "array"
		start, end = e.Comp.Span.Start, e.Comp.Span.End
	case Key:
		accessType = "key"
		expected = "object"
		start, end = e.Comp.Span.Start, e.Comp.Span.End
	}
	if e.RawPath == "" || !e.Comp.Span.Valid {
		return fmt.Sprintf("can't perform %q based access on %q", accessType, typeName(e.Root))
	}
	underline := strings.Repeat(" ", start) + strings.Repeat("^", end-start+1)
	return fmt.Sprintf(
		"can't perform %q based access on %q which has a type of %q but this operation requires a type of %q.\n%s\n%s",
		accessType, e.RawPath[:start], typeName(e.Root), expected, e.RawPath, underline,
	)
}

// SetValue inserts value into the tree rooted at root, following path,
// creating containers as needed. root may be nil.
func SetValue(root interface{}, path []Component, value interface{}) (interface{}, error) {
	if len(path) == 0 {
		return value, nil
	}
	switch r := root.(type) {
	case map[string]interface{}:
		comp := path[0]
		if comp.Kind != Key {
			return nil, &TypeError{Root: r, Comp: comp}
		}
		if len(path) == 1 {
			r[comp.Key] = foldDuplicate(r[comp.Key], value)
			return r, nil
		}
		child, _ := r[comp.Key]
		newChild, err := SetValue(child, path[1:], value)
		if err != nil {
			return nil, err
		}
		r[comp.Key] = newChild
		return r, nil
	case []interface{}:
		comp := path[0]
		if comp.Kind != Index {
			return nil, &TypeError{Root: r, Comp: comp}
		}
		index := comp.Index
		if index == -1 {
			index = len(r)
		}
		if len(path) == 1 {
			return arrInsert(r, index, value), nil
		}
		var child interface{}
		if index < len(r) {
			child = r[index]
		}
		newChild, err := SetValue(child, path[1:], value)
		if err != nil {
			return nil, err
		}
		return arrInsert(r, index, newChild), nil
	case nil:
		switch path[0].Kind {
		case Key:
			return SetValue(map[string]interface{}{}, path, value)
		default:
			return SetValue([]interface{}{}, path, value)
		}
	default:
		if len(path) == 1 {
			return value, nil
		}
		return nil, &TypeError{Root: root, Comp: path[0]}
	}
}

// foldDuplicate implements the object-key collision rule: setting a key
// that already holds a non-null, non-array value folds both into a
// 2-element array; setting a key that already holds an array appends.
func foldDuplicate(existing, value interface{}) interface{} {
	switch e := existing.(type) {
	case nil:
		return value
	case []interface{}:
		return append(e, value)
	default:
		return []interface{}{e, value}
	}
}

func arrInsert(arr []interface{}, index int, value interface{}) []interface{} {
	for index >= len(arr) {
		arr = append(arr, nil)
	}
	arr[index] = value
	return arr
}
