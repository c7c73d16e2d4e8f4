package diag

import (
	"regexp"
	"strconv"
	"strings"
)

// IntentKind identifies which diagnostic a message asked for.
type IntentKind string

const (
	IntentPing       IntentKind = "ping"
	IntentTraceroute IntentKind = "traceroute"
	IntentPortTest   IntentKind = "port_test"
)

// Intent is a parsed diagnostic request. Host is always populated; when the
// message was host-less ("ping it") the host comes from conversation context.
type Intent struct {
	Kind  IntentKind
	Host  string
	Count int // ping packet count or traceroute hop limit
	Port  int // port test only
}

const (
	defaultPingCount = 4
	defaultHopLimit  = maxHops
)

var (
	pingPattern  = regexp.MustCompile(`(?i)\bping\s+([A-Za-z0-9.\-_:\[\]]+)(?:\s+(\d{1,2}))?`)
	tracePattern = regexp.MustCompile(`(?i)\b(?:traceroute|tracert|trace\s*route)\s+(?:to\s+)?([A-Za-z0-9.\-_:\[\]]+)(?:\s+(\d{1,2}))?`)
	portPattern  = regexp.MustCompile(`(?i)\b(?:test|check|probe)\s+port\s+(\d{1,5})(?:\s+on\s+([A-Za-z0-9.\-_:\[\]]+))?`)

	ipv4Pattern = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
	// hostnamePattern wants at least one dot so bare words in prose don't
	// read as hosts.
	hostnamePattern = regexp.MustCompile(`\b[A-Za-z0-9][A-Za-z0-9\-_]*(?:\.[A-Za-z0-9\-_]+)+\b`)
)

// referentWords are pronouns that stand in for a host named earlier in the
// conversation.
var referentWords = map[string]bool{
	"it": true, "that": true, "this": true, "them": true,
	"host": true, "device": true,
}

// DetectIntent parses one diagnostic request out of a user message. History
// is recent conversation text, newest last; it is consulted only when the
// message names no host itself. Returns nil when no diagnostic was asked
// for or a host-less request cannot be resolved; nil means "no diagnostic
// requested", never an error.
func DetectIntent(message string, history []string) *Intent {
	if m := tracePattern.FindStringSubmatch(message); m != nil {
		host, ok := resolveHost(m[1], history)
		if !ok {
			return nil
		}
		return &Intent{Kind: IntentTraceroute, Host: host, Count: parseCount(m[2], defaultHopLimit)}
	}

	if m := portPattern.FindStringSubmatch(message); m != nil {
		port, err := strconv.Atoi(m[1])
		if err != nil || port < 1 || port > 65535 {
			return nil
		}
		host, ok := resolveHost(m[2], history)
		if !ok {
			return nil
		}
		return &Intent{Kind: IntentPortTest, Host: host, Port: port}
	}

	if m := pingPattern.FindStringSubmatch(message); m != nil {
		host, ok := resolveHost(m[1], history)
		if !ok {
			return nil
		}
		return &Intent{Kind: IntentPing, Host: host, Count: parseCount(m[2], defaultPingCount)}
	}

	return nil
}

// resolveHost turns a captured host token into a probe target. Referent
// pronouns and empty captures fall back to the conversation. An explicit
// token must actually look like a host (contain a dot or colon) so prose
// like "ping was slow" never selects a bare word as a target.
func resolveHost(token string, history []string) (string, bool) {
	token = strings.TrimRight(token, ".,!?")
	if token != "" && !referentWords[strings.ToLower(token)] {
		if hostPattern.MatchString(token) && strings.ContainsAny(token, ".:") {
			return token, true
		}
		return "", false
	}
	return ResolveReferent(history)
}

// ResolveReferent finds the host a pronoun refers to: the most recent
// IPv4-looking or hostname-looking token in the conversation wins, scanning
// newest turn first and rightmost match first within a turn.
func ResolveReferent(history []string) (string, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		candidates := append(
			ipv4Pattern.FindAllStringIndex(history[i], -1),
			hostnamePattern.FindAllStringIndex(history[i], -1)...,
		)
		best := ""
		bestPos := -1
		for _, loc := range candidates {
			tok := history[i][loc[0]:loc[1]]
			if loc[0] > bestPos && hostPattern.MatchString(tok) {
				best, bestPos = tok, loc[0]
			}
		}
		if best != "" {
			return best, true
		}
	}
	return "", false
}

// FindIPv4 returns the first IPv4-looking token in a message, or "".
func FindIPv4(text string) string {
	return ipv4Pattern.FindString(text)
}

func parseCount(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
