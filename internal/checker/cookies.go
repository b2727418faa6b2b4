package checker

import (
	"strings"
)

// cookieHeader turns Set-Cookie values into a Cookie request header. Values
// may be folded into one header with commas; a later cookie with the same
// name replaces the earlier value but keeps its position.
func cookieHeader(setCookies []string) string {
	var names []string
	values := map[string]string{}

	for _, header := range setCookies {
		for _, cookie := range splitSetCookie(header) {
			pair := cookie
			if i := strings.IndexByte(pair, ';'); i >= 0 {
				pair = pair[:i]
			}
			pair = strings.TrimSpace(pair)
			eq := strings.IndexByte(pair, '=')
			if eq <= 0 {
				continue
			}
			name := strings.TrimSpace(pair[:eq])
			if _, seen := values[name]; !seen {
				names = append(names, name)
			}
			values[name] = strings.TrimSpace(pair[eq+1:])
		}
	}

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+"="+values[name])
	}
	return strings.Join(parts, "; ")
}

// splitSetCookie splits a possibly folded Set-Cookie value. A comma only
// separates cookies when the text after it starts a new name=value pair, so
// commas inside Expires dates stay put.
func splitSetCookie(header string) []string {
	var out []string
	start := 0
	for i := 0; i < len(header); i++ {
		if header[i] != ',' || !startsCookiePair(header[i+1:]) {
			continue
		}
		out = append(out, strings.TrimSpace(header[start:i]))
		start = i + 1
	}
	if rest := strings.TrimSpace(header[start:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

func startsCookiePair(s string) bool {
	s = strings.TrimLeft(s, " \t")
	end := strings.IndexAny(s, ";,")
	if end >= 0 {
		s = s[:end]
	}
	eq := strings.IndexByte(s, '=')
	if eq <= 0 {
		return false
	}
	return !strings.ContainsAny(s[:eq], " \t")
}
