package entities

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

const UnknownIP = "unknown"

var ipv4Tail = regexp.MustCompile(`\.\d+\.\d+$`)

// MaskIP hides the host part of a client address: the last two IPv4 octets
// become "***" and the last four IPv6 groups collapse into one "****".
func MaskIP(ip string) string {
	ip = strings.TrimSpace(ip)
	if ip == "" || ip == UnknownIP {
		return UnknownIP
	}
	if strings.Contains(ip, ":") {
		parts := strings.Split(ip, ":")
		if len(parts) <= 4 {
			return ip
		}
		return strings.Join(append(parts[:len(parts)-4], "****"), ":")
	}
	return ipv4Tail.ReplaceAllString(ip, ".***.***")
}

// WordFilter masks disallowed words, case-insensitively, with one '*' per rune.
type WordFilter struct {
	pattern *regexp.Regexp
}

func NewWordFilter(words []string) WordFilter {
	cleaned := make([]string, 0, len(words))
	for _, word := range words {
		word = strings.TrimSpace(word)
		if word != "" {
			cleaned = append(cleaned, regexp.QuoteMeta(word))
		}
	}
	if len(cleaned) == 0 {
		return WordFilter{}
	}
	// Longest first so overlapping entries mask the widest match.
	sort.Slice(cleaned, func(i, j int) bool { return len(cleaned[i]) > len(cleaned[j]) })
	return WordFilter{pattern: regexp.MustCompile("(?i)" + strings.Join(cleaned, "|"))}
}

func (f WordFilter) Clean(text string) string {
	if f.pattern == nil || text == "" {
		return text
	}
	return f.pattern.ReplaceAllStringFunc(text, func(match string) string {
		return strings.Repeat("*", utf8.RuneCountInString(match))
	})
}
