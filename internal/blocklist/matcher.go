package blocklist

import (
	"net/url"
	"strings"
)

// Normalize reduces a URL or bare host to a comparable domain: lowercase
// hostname without a leading "www.". It returns false for input that has no
// parseable host.
func Normalize(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	host := strings.ToLower(u.Hostname())
	host = strings.TrimSuffix(host, ".")
	if host == "" || strings.ContainsAny(host, " \t") {
		return "", false
	}
	host = strings.TrimPrefix(host, "www.")
	if host == "" {
		return "", false
	}
	return host, true
}

// isDomainLike reports whether a blocked entry names a whole site rather
// than a specific path.
func isDomainLike(entry string) bool {
	entry = strings.TrimSpace(entry)
	if i := strings.Index(entry, "://"); i >= 0 {
		entry = entry[i+3:]
	}
	slash := strings.IndexAny(entry, "/?#")
	if slash < 0 {
		return true
	}
	rest := strings.Trim(entry[slash:], "/")
	return rest == ""
}

// Matches reports whether a navigation to navigatedURL is covered by the
// blocked entry. Domain entries match the domain itself and any subdomain;
// entries carrying a path, or that cannot be normalized, fall back to
// case-insensitive substring containment on the full URL.
func Matches(navigatedURL, entry string) bool {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return false
	}

	domain, ok := Normalize(entry)
	if !ok || !isDomainLike(entry) {
		return strings.Contains(strings.ToLower(navigatedURL), strings.ToLower(entry))
	}

	host, ok := Normalize(navigatedURL)
	if !ok {
		return false
	}
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// MatchAny returns the first entry that matches navigatedURL.
func MatchAny(navigatedURL string, entries []string) (string, bool) {
	for _, e := range entries {
		if Matches(navigatedURL, e) {
			return e, true
		}
	}
	return "", false
}
