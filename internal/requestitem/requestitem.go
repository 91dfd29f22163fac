// Package requestitem parses the positional key<sep>value request-item
// grammar into a closed set of Item variants; assembling them into a
// request body is left to the caller (internal/cli).
package requestitem

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"strings"

	errgo "gopkg.in/errgo.v1"
)

// Kind identifies which request-item variant an Item holds.
type Kind int

const (
	// Header sets a header to Value.
	Header Kind = iota
	// HeaderUnset removes a header even if a default would add it.
	HeaderUnset
	// QueryParam appends Name=Value to the URL query.
	QueryParam
	// DataField is a string-valued body field.
	DataField
	// JSONField is a typed JSON subtree injected into the body.
	JSONField
	// FormFile is a file part for multipart, with an optional mime type.
	FormFile
)

// Item is a single parsed request item.
type Item struct {
	Kind  Kind
	Name  string
	Value string      // raw string value (Header, HeaderUnset, QueryParam, DataField, FormFile path)
	JSON  interface{} // only set when Kind == JSONField
	Mime  string      // only set when Kind == FormFile and a ;type= suffix was given
}

const specialChars = "=@:;\\"

// separators is tried in this order: longest match first.
var separators = []string{"==", ":=", "=", "@", ":"}

func unescape(s string) string {
	var out strings.Builder
	out.Grow(len(s))
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
			out.WriteRune(ch)
			continue
		}
		out.WriteRune(ch)
	}
	return out.String()
}

// split finds the first unescaped separator, longest match first, and
// returns the raw (still escaped) key, the separator, and the raw value.
func split(s string) (key, sep, value string, ok bool) {
	runes := []rune(s)
	i := 0
	for i < len(runes) {
		if runes[i] == '\\' {
			// The escaped character (and the backslash) can never start a
			// separator; skip both.
			i += 2
			continue
		}
		rest := string(runes[i:])
		for _, candidate := range separators {
			if strings.HasPrefix(rest, candidate) {
				key = string(runes[:i])
				sep = candidate
				value = rest[len(candidate):]
				return key, sep, value, true
			}
		}
		i++
	}
	return "", "", "", false
}

// ParseItem parses a single positional argument into an Item.
func ParseItem(raw string) (Item, error) {
	key, sep, value, ok := split(raw)
	if ok {
		key = unescape(key)
		value = unescape(value)
		switch sep {
		case "==":
			return Item{Kind: QueryParam, Name: key, Value: value}, nil
		case "=":
			return Item{Kind: DataField, Name: key, Value: value}, nil
		case ":=":
			var v interface{}
			if err := json.Unmarshal([]byte(value), &v); err != nil {
				return Item{}, errgo.Newf("%q: invalid value: %v", raw, err)
			}
			return Item{Kind: JSONField, Name: key, JSON: v}, nil
		case "@":
			if idx := strings.LastIndex(value, ";type="); idx >= 0 {
				return Item{Kind: FormFile, Name: key, Value: value[:idx], Mime: value[idx+len(";type="):]}, nil
			}
			return Item{Kind: FormFile, Name: key, Value: value}, nil
		case ":":
			if value == "" {
				return Item{Kind: HeaderUnset, Name: key}, nil
			}
			return Item{Kind: Header, Name: key, Value: value}, nil
		}
	}
	if strings.HasSuffix(raw, ";") {
		// Technically too permissive: the trailing ; might itself be escaped.
		return Item{Kind: Header, Name: unescape(strings.TrimSuffix(raw, ";")), Value: ""}, nil
	}
	return Item{}, errgo.Newf("%q is not a valid request item", raw)
}

// FileToPart reads path and returns the body bytes for a FormFile item's
// multipart part, for use by body assembly (see multipartBody in
// internal/cli).
func FileToPart(path string) ([]byte, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errgo.Mask(err)
	}
	return data, nil
}

// String renders the item back roughly as it would have been typed,
// useful for --debug dumps.
func (it Item) String() string {
	switch it.Kind {
	case Header:
		return fmt.Sprintf("%s:%s", it.Name, it.Value)
	case HeaderUnset:
		return fmt.Sprintf("%s:", it.Name)
	case QueryParam:
		return fmt.Sprintf("%s==%s", it.Name, it.Value)
	case DataField:
		return fmt.Sprintf("%s=%s", it.Name, it.Value)
	case JSONField:
		b, _ := json.Marshal(it.JSON)
		return fmt.Sprintf("%s:=%s", it.Name, b)
	case FormFile:
		if it.Mime != "" {
			return fmt.Sprintf("%s@%s;type=%s", it.Name, it.Value, it.Mime)
		}
		return fmt.Sprintf("%s@%s", it.Name, it.Value)
	}
	return ""
}
