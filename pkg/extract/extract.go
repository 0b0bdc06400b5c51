package extract

import (
	"bytes"
	"encoding/json"
	"regexp"

	"github.com/buger/jsonparser"
	errs "igfeed/pkg/errors"
)

// Anchor is a textual marker in a page after which a JSON document starts
type Anchor struct {
	Name   string
	prefix *regexp.Regexp
}

// NewAnchor builds an anchor from a pattern that matches everything up to the first byte of the JSON value
func NewAnchor(name, pattern string) Anchor {
	return Anchor{Name: name, prefix: regexp.MustCompile(pattern)}
}

var (
	// SharedData matches `window._sharedData = {...};`
	SharedData = NewAnchor("_sharedData", `window\._sharedData\s*=\s*`)

	// AdditionalDataLoaded matches `window.__additionalDataLoaded('/user/', {...});`
	AdditionalDataLoaded = NewAnchor("__additionalDataLoaded",
		`window\.__additionalDataLoaded\(\s*(?:'[^']*'|"[^"]*"|[^,)]*)\s*,\s*`)
)

// DefaultAnchors is the order in which First tries anchors
var DefaultAnchors = []Anchor{SharedData, AdditionalDataLoaded}

// Extract returns the JSON value that follows the first occurrence of the anchor in html.
// Exactly one value is decoded; whatever follows it (`;`, `)`, script text) is ignored.
func Extract(html []byte, a Anchor) (json.RawMessage, error) {
	loc := a.prefix.FindIndex(html)
	if loc == nil {
		return nil, errs.NewParse(errs.ReasonAnchorNotFound, "no %s data in page", a.Name)
	}

	var raw json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(html[loc[1]:]))
	if err := dec.Decode(&raw); err != nil {
		return nil, errs.NewParse(errs.ReasonInvalidJSON, "invalid JSON after %s", a.Name).Wrap(err)
	}
	return raw, nil
}

// First tries each anchor in order and returns the first payload found, with the anchor that produced it.
// When every anchor fails the error of the first one is returned.
func First(html []byte, anchors ...Anchor) (json.RawMessage, Anchor, error) {
	if len(anchors) == 0 {
		anchors = DefaultAnchors
	}

	var firstErr error
	for _, a := range anchors {
		raw, err := Extract(html, a)
		if err == nil {
			return raw, a, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, Anchor{}, firstErr
}

// Lookup returns the JSON value at the key path. Array elements are addressed as "[0]".
// A missing or null value is a missing_field parse error.
func Lookup(payload []byte, path ...string) (json.RawMessage, error) {
	value, typ, _, err := jsonparser.Get(payload, path...)
	if err != nil {
		if err == jsonparser.KeyPathNotFoundError {
			return nil, errs.NewParse(errs.ReasonMissingField, "missing %s", pathString(path))
		}
		return nil, errs.NewParse(errs.ReasonInvalidJSON, "cannot read %s", pathString(path)).Wrap(err)
	}

	switch typ {
	case jsonparser.Null, jsonparser.NotExist:
		return nil, errs.NewParse(errs.ReasonMissingField, "missing %s", pathString(path))
	case jsonparser.String:
		// jsonparser strips the quotes but leaves escapes intact
		quoted := make([]byte, 0, len(value)+2)
		quoted = append(quoted, '"')
		quoted = append(quoted, value...)
		quoted = append(quoted, '"')
		return quoted, nil
	}
	return value, nil
}

// String reads a string at the key path
func String(payload []byte, path ...string) (string, error) {
	raw, err := Lookup(payload, path...)
	if err != nil {
		return "", err
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", errs.NewParse(errs.ReasonInvalidJSON, "%s is not a string", pathString(path)).Wrap(err)
	}
	return s, nil
}

// Decode unmarshals the value at the key path into v
func Decode(payload []byte, v interface{}, path ...string) error {
	raw, err := Lookup(payload, path...)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errs.NewParse(errs.ReasonInvalidJSON, "cannot decode %s", pathString(path)).Wrap(err)
	}
	return nil
}

func pathString(path []string) string {
	if len(path) == 0 {
		return "document"
	}
	var b bytes.Buffer
	for i, key := range path {
		if len(key) > 0 && key[0] == '[' {
			b.WriteString(key)
			continue
		}
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(key)
	}
	return b.String()
}
