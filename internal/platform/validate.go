package platform

import (
	"net"
	"net/url"
	"regexp"
	"strings"
)

const (
	MinLimit      = 1
	MaxLimit      = 250
	MaxKeywordLen = 200
)

var privateHosts = []*regexp.Regexp{
	regexp.MustCompile(`^localhost$`),
	regexp.MustCompile(`\.localhost$`),
	regexp.MustCompile(`^127\.`),
	regexp.MustCompile(`^10\.`),
	regexp.MustCompile(`^172\.(1[6-9]|2[0-9]|3[01])\.`),
	regexp.MustCompile(`^192\.168\.`),
	regexp.MustCompile(`^169\.254\.`),
	regexp.MustCompile(`^0\.`),
}

// URLPolicy controls public URL validation.
type URLPolicy struct {
	AllowPrivateHosts bool
}

// ValidateURL requires an absolute https URL with a public host.
func (p URLPolicy) ValidateURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, &ValidationError{Field: "url", Message: "url is required"}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, &ValidationError{Field: "url", Message: "malformed url"}
	}
	if u.Scheme != "https" {
		return nil, &ValidationError{Field: "url", Message: "only https URLs are allowed"}
	}
	host := u.Hostname()
	if host == "" {
		return nil, &ValidationError{Field: "url", Message: "url has no host"}
	}
	if !p.AllowPrivateHosts && isPrivateHost(host) {
		return nil, &ValidationError{Field: "url", Message: "private or local hosts are not allowed"}
	}
	return u, nil
}

func isPrivateHost(host string) bool {
	host = strings.ToLower(host)
	for _, re := range privateHosts {
		if re.MatchString(host) {
			return true
		}
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() || ip.IsLinkLocalUnicast()
	}
	return false
}

// ValidateQuery checks the keyword length and the limit range.
func ValidateQuery(keyword string, limit int) error {
	if limit < MinLimit || limit > MaxLimit {
		return &ValidationError{Field: "limit", Message: "limit must be between 1 and 250"}
	}
	if len([]rune(keyword)) > MaxKeywordLen {
		return &ValidationError{Field: "keyword", Message: "keyword must be at most 200 characters"}
	}
	return nil
}

// BaseURL returns scheme://host for a store URL.
func BaseURL(storeURL string) (string, error) {
	u, err := url.Parse(storeURL)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", &ValidationError{Field: "url", Message: "url must be absolute"}
	}
	return u.Scheme + "://" + u.Host, nil
}
