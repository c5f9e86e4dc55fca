package config

import (
	"log/slog"
	"net/http"
	"strings"
)

// ParseCookies turns a raw "k=v; k2=v2" string into cookies. Pairs without
// a name are skipped.
func ParseCookies(raw string) []*http.Cookie {
	var cookies []*http.Cookie
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, ok := strings.Cut(part, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			slog.Warn("ignoring malformed cookie pair", slog.String("pair", part))
			continue
		}
		cookies = append(cookies, &http.Cookie{Name: name, Value: strings.TrimSpace(value)})
	}
	return cookies
}
