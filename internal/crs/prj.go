package crs

import (
	"fmt"
	"strconv"
	"strings"
)

// ParsePRJ reads the WKT of a .prj sidecar. It only extracts the root name
// and the root AUTHORITY; the WKT text is kept verbatim.
func ParsePRJ(text string) (*CRS, error) {
	wkt := strings.TrimSpace(strings.TrimPrefix(text, "\uFEFF"))
	if wkt == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidWKT)
	}
	open := strings.IndexAny(wkt, "[(")
	if open <= 0 {
		return nil, fmt.Errorf("%w: missing root node", ErrInvalidWKT)
	}
	body, err := rootBody(wkt, open)
	if err != nil {
		return nil, err
	}

	c := &CRS{WKT: wkt}
	args := splitTop(body)
	if len(args) > 0 {
		c.Name = unquote(args[0])
	}
	for _, a := range args[1:] {
		kw, inner, ok := node(a)
		if !ok || !strings.EqualFold(kw, "AUTHORITY") {
			continue
		}
		parts := splitTop(inner)
		if len(parts) != 2 {
			continue
		}
		code, err := strconv.ParseInt(unquote(parts[1]), 10, 32)
		if err != nil {
			continue
		}
		c.Authority = unquote(parts[0])
		c.SRID = int32(code)
	}
	return c, nil
}

// rootBody returns the text between the root brackets.
func rootBody(wkt string, open int) (string, error) {
	depth := 0
	inQuote := false
	for i := open; i < len(wkt); i++ {
		switch ch := wkt[i]; {
		case ch == '"':
			inQuote = !inQuote
		case inQuote:
		case ch == '[' || ch == '(':
			depth++
		case ch == ']' || ch == ')':
			depth--
			if depth == 0 {
				return wkt[open+1 : i], nil
			}
		}
	}
	return "", fmt.Errorf("%w: unbalanced brackets", ErrInvalidWKT)
}

// splitTop splits s on commas that are not nested or quoted.
func splitTop(s string) []string {
	var out []string
	depth, start := 0, 0
	inQuote := false
	for i := 0; i < len(s); i++ {
		switch ch := s[i]; {
		case ch == '"':
			inQuote = !inQuote
		case inQuote:
		case ch == '[' || ch == '(':
			depth++
		case ch == ']' || ch == ')':
			depth--
		case ch == ',' && depth == 0:
			out = append(out, strings.TrimSpace(s[start:i]))
			start = i + 1
		}
	}
	if rest := strings.TrimSpace(s[start:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

// node splits `KEYWORD[inner]` into its keyword and inner text.
func node(s string) (string, string, bool) {
	open := strings.IndexAny(s, "[(")
	if open <= 0 || len(s) < open+2 {
		return "", "", false
	}
	last := s[len(s)-1]
	if last != ']' && last != ')' {
		return "", "", false
	}
	return strings.TrimSpace(s[:open]), s[open+1 : len(s)-1], true
}

func unquote(s string) string {
	return strings.Trim(strings.TrimSpace(s), `"`)
}
