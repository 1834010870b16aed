package quickshare

import (
	"net/url"
	"strings"
)

// NoteMarker starts every note written by quick share
const NoteMarker = "quick-share"

// Scope 分享范围
type Scope string

const (
	ScopeLibrary     Scope = "library"
	ScopeCollections Scope = "collections"
)

func (s Scope) Valid() bool {
	return s == ScopeLibrary || s == ScopeCollections
}

// Note is the metadata published with a quick-share version
type Note struct {
	Code        string   `json:"code"`
	Scope       Scope    `json:"scope"`
	Collections []string `json:"collections,omitempty"`
}

// EncodeNote renders quick-share|code=..|scope=..|collections=a,b with each name URL-escaped
func EncodeNote(n Note) string {
	names := make([]string, 0, len(n.Collections))
	for _, c := range n.Collections {
		if c != "" {
			names = append(names, url.QueryEscape(c))
		}
	}
	return NoteMarker +
		"|code=" + n.Code +
		"|scope=" + string(n.Scope) +
		"|collections=" + strings.Join(names, ",")
}

// DecodeNote parses a note. Only the exact shape EncodeNote writes is accepted: the four
// parts in order, canonical escaping, nothing extra. Anything else yields nil.
// DecodeNote 解析分享备注，格式不符时返回 nil
func DecodeNote(s string) *Note {
	parts := strings.Split(s, "|")
	if len(parts) != 4 || parts[0] != NoteMarker {
		return nil
	}
	values := make([]string, 0, 3)
	for i, key := range []string{"code", "scope", "collections"} {
		v, ok := strings.CutPrefix(parts[i+1], key+"=")
		if !ok {
			return nil
		}
		values = append(values, v)
	}

	code, ok := NormalizeCode(values[0])
	if !ok || code != values[0] {
		return nil
	}
	n := &Note{Code: code, Scope: Scope(values[1])}
	if !n.Scope.Valid() {
		return nil
	}
	if raw := values[2]; raw != "" {
		for _, enc := range strings.Split(raw, ",") {
			name, err := url.QueryUnescape(enc)
			if err != nil || name == "" || url.QueryEscape(name) != enc {
				return nil
			}
			n.Collections = append(n.Collections, name)
		}
	}
	return n
}
