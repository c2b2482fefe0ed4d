package gateway

import (
	"encoding/json"
	"strings"

	"github.com/sells-group/usecase-cli/internal/model"
)

// ParseResult is the outcome of parsing one analysis response. Incomplete
// means the response was cut off mid-array and more items likely remain; it
// is the continuation signal for batched analysis.
type ParseResult struct {
	Items      []model.UseCase
	Incomplete bool
}

// StripFences removes markdown code-fence wrappers the service sometimes
// adds despite instructions.
func StripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Drop a language tag like "json" on the fence line.
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		first := strings.TrimSpace(s[:idx])
		if len(first) <= 10 && !strings.ContainsAny(first, "{[") {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// ParseItems extracts use-case objects from a possibly malformed or
// truncated response. Strategies, in order: whole-text JSON, balanced-array
// scan (with truncation recovery), newline-delimited objects, and balanced
// object-fragment scan.
func ParseItems(raw string) ParseResult {
	text := StripFences(raw)
	if text == "" {
		return ParseResult{}
	}

	// Strategy 1: the whole text is valid JSON.
	var whole any
	if err := json.Unmarshal([]byte(text), &whole); err == nil {
		switch whole.(type) {
		case []any:
			var elems []json.RawMessage
			if err := json.Unmarshal([]byte(text), &elems); err == nil {
				return ParseResult{Items: decodeElements(elems)}
			}
		case map[string]any:
			var item model.UseCase
			if err := json.Unmarshal([]byte(text), &item); err == nil {
				return ParseResult{Items: []model.UseCase{item}}
			}
		}
	}

	// Strategy 2: find the first array and scan for its balanced extent.
	if start := strings.IndexByte(text, '['); start >= 0 {
		slice, closed := balancedSlice(text[start:], '[', ']')
		if closed {
			var elems []json.RawMessage
			if err := json.Unmarshal([]byte(slice), &elems); err == nil {
				return ParseResult{Items: decodeElements(elems)}
			}
		} else {
			// The array never closes: the response was truncated. Recover
			// what parses by terminating at the last complete element.
			if items, ok := recoverTruncatedArray(slice); ok {
				return ParseResult{Items: items, Incomplete: true}
			}
		}
	}

	// Strategy 3: newline-delimited JSON objects.
	var ndItems []model.UseCase
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(line), ","))
		if line == "" || (line[0] != '{' && line[0] != '"') {
			continue
		}
		var elem json.RawMessage
		if err := json.Unmarshal([]byte(line), &elem); err != nil {
			continue
		}
		if item, ok := decodeElement(elem); ok {
			ndItems = append(ndItems, item)
		}
	}
	if len(ndItems) > 0 {
		return ParseResult{Items: ndItems}
	}

	// Strategy 4: scan for balanced object fragments anywhere in the text.
	// Fragment scanning cannot prove the response ended cleanly.
	frags := scanObjectFragments(text)
	if len(frags) > 0 {
		return ParseResult{Items: frags, Incomplete: true}
	}
	return ParseResult{}
}

// balancedSlice returns the prefix of s spanning from the opening delimiter
// to its matching close, respecting JSON string and escape rules. closed is
// false when the delimiter never balances.
func balancedSlice(s string, open, close byte) (string, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[:i+1], true
			}
		}
	}
	return s, false
}

// recoverTruncatedArray tries to salvage the complete elements of an
// unterminated array slice.
func recoverTruncatedArray(slice string) ([]model.UseCase, bool) {
	// Cheapest fix first: the cut may have landed exactly between elements.
	candidates := []string{
		strings.TrimSuffix(strings.TrimSpace(slice), ",") + "]",
	}
	// Otherwise drop the trailing partial element.
	if idx := strings.LastIndexByte(slice, '}'); idx >= 0 {
		candidates = append(candidates, slice[:idx+1]+"]")
	}
	for _, cand := range candidates {
		var elems []json.RawMessage
		if err := json.Unmarshal([]byte(cand), &elems); err == nil {
			if items := decodeElements(elems); len(items) > 0 {
				return items, true
			}
		}
	}
	// Last resort: pull balanced objects out of the slice.
	if items := scanObjectFragments(slice); len(items) > 0 {
		return items, true
	}
	return nil, false
}

// scanObjectFragments extracts every top-level balanced {...} fragment that
// parses as an object.
func scanObjectFragments(s string) []model.UseCase {
	var items []model.UseCase
	for i := 0; i < len(s); {
		start := strings.IndexByte(s[i:], '{')
		if start < 0 {
			break
		}
		start += i
		frag, closed := balancedSlice(s[start:], '{', '}')
		if !closed {
			break
		}
		var elem json.RawMessage
		if err := json.Unmarshal([]byte(frag), &elem); err == nil {
			if item, ok := decodeElement(elem); ok {
				items = append(items, item)
			}
		}
		i = start + len(frag)
	}
	return items
}

func decodeElements(elems []json.RawMessage) []model.UseCase {
	items := make([]model.UseCase, 0, len(elems))
	for _, elem := range elems {
		if item, ok := decodeElement(elem); ok {
			items = append(items, item)
		}
	}
	return items
}

// decodeElement turns one JSON value into a use case. Bare strings become
// name-only items; other scalars are skipped.
func decodeElement(elem json.RawMessage) (model.UseCase, bool) {
	trimmed := strings.TrimSpace(string(elem))
	if trimmed == "" {
		return model.UseCase{}, false
	}
	switch trimmed[0] {
	case '{':
		var item model.UseCase
		if err := json.Unmarshal(elem, &item); err != nil {
			return model.UseCase{}, false
		}
		return item, true
	case '"':
		var s string
		if err := json.Unmarshal(elem, &s); err != nil || strings.TrimSpace(s) == "" {
			return model.UseCase{}, false
		}
		return model.UseCase{Name: s}, true
	default:
		return model.UseCase{}, false
	}
}
