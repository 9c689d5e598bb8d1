package util

import (
	"net/url"
	"regexp"
	"strings"
)

var nonPhoneChars = regexp.MustCompile(`[^\d+]+`)

// NormalizeEmail lowercases and trims; external systems key contacts on it.
func NormalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// NormalizePhone keeps digits and a leading plus sign; "00" becomes "+".
func NormalizePhone(raw string) string {
	s := nonPhoneChars.ReplaceAllString(strings.TrimSpace(raw), "")
	if strings.HasPrefix(s, "00") {
		s = "+" + s[2:]
	}
	if i := strings.LastIndex(s, "+"); i > 0 {
		s = s[:1] + strings.ReplaceAll(s[1:], "+", "")
	}
	return s
}

// NormalizeDomain reduces a website or domain to its bare host, e.g.
// "https://www.Acme.com/about" => "acme.com".
func NormalizeDomain(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}

// NormalizeLinkedIn trims and drops query strings and trailing slashes.
func NormalizeLinkedIn(raw string) string {
	s := strings.TrimSpace(raw)
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimRight(s, "/")
}
