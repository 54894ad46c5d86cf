package parser

import (
	"regexp"
	"strings"

	"github.com/shineum/enjinmel-relay/internal/email"
)

var (
	angleAddr  = regexp.MustCompile(`(.*)<(.+)>`)
	localPart  = regexp.MustCompile("^[a-zA-Z0-9!#$%&'*+/=?^_`{|}~.-]+$")
	domainPart = regexp.MustCompile(`^[a-zA-Z0-9-]+$`)
	spaceRun   = regexp.MustCompile(`\s+`)
)

// ParseAddresses flattens one or more address lists into validated, unique
// email addresses in first-seen order. Entries that do not parse are dropped.
func ParseAddresses(raw ...string) []string {
	var out []string
	seen := make(map[string]bool)

	for _, list := range raw {
		for _, item := range splitList(list) {
			addr := ParseAddress(item).Email
			if !ValidEmail(addr) || seen[addr] {
				continue
			}
			seen[addr] = true
			out = append(out, addr)
		}
	}
	return out
}

// ParseAddress splits `Name <user@host>` into its parts. Input without angle
// brackets is taken as a bare address.
func ParseAddress(raw string) email.Address {
	raw = strings.TrimSpace(raw)
	if m := angleAddr.FindStringSubmatch(raw); m != nil {
		return email.Address{
			Name:  cleanName(m[1]),
			Email: strings.TrimSpace(m[2]),
		}
	}
	return email.Address{Email: raw}
}

// ValidEmail reports whether s looks like local@domain with a dotted domain.
func ValidEmail(s string) bool {
	at := strings.LastIndex(s, "@")
	if at < 1 || at == len(s)-1 {
		return false
	}
	local, domain := s[:at], s[at+1:]

	if !localPart.MatchString(local) {
		return false
	}
	if strings.Contains(domain, "..") || strings.Trim(domain, " \t\n\r.") != domain {
		return false
	}

	labels := strings.Split(domain, ".")
	if len(labels) < 2 {
		return false
	}
	for _, l := range labels {
		if !domainPart.MatchString(l) || strings.HasPrefix(l, "-") || strings.HasSuffix(l, "-") {
			return false
		}
	}
	return true
}

func cleanName(s string) string {
	s = strings.Trim(s, " \"'")
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}

// splitList splits on commas, semicolons and newlines, dropping blanks.
func splitList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == '\n' || r == '\r'
	})
	out := fields[:0]
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
