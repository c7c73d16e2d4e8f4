package diag

import "testing"

func TestDetectIntentExplicitHosts(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    Intent
	}{
		{"ping with host", "can you ping 10.0.0.5", Intent{Kind: IntentPing, Host: "10.0.0.5", Count: 4}},
		{"ping with count", "ping router.lan 3", Intent{Kind: IntentPing, Host: "router.lan", Count: 3}},
		{"traceroute with to", "traceroute to 8.8.8.8", Intent{Kind: IntentTraceroute, Host: "8.8.8.8", Count: 20}},
		{"tracert variant", "tracert core-sw.office 12", Intent{Kind: IntentTraceroute, Host: "core-sw.office", Count: 12}},
		{"port test", "test port 443 on 192.168.1.1", Intent{Kind: IntentPortTest, Host: "192.168.1.1", Port: 443}},
		{"port check variant", "check port 22 on nas.lan", Intent{Kind: IntentPortTest, Host: "nas.lan", Port: 22}},
		{"trailing punctuation stripped", "ping 10.0.0.9.", Intent{Kind: IntentPing, Host: "10.0.0.9", Count: 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectIntent(tt.message, nil)
			if got == nil {
				t.Fatalf("DetectIntent(%q) = nil, want %+v", tt.message, tt.want)
			}
			if *got != tt.want {
				t.Errorf("DetectIntent(%q) = %+v, want %+v", tt.message, *got, tt.want)
			}
		})
	}
}

func TestDetectIntentNoDiagnostic(t *testing.T) {
	messages := []string{
		"how many clients are online?",
		"what happened overnight",
		"the ping was slow yesterday", // past tense, no target and no history
		"",
	}
	for _, msg := range messages {
		if got := DetectIntent(msg, nil); got != nil {
			t.Errorf("DetectIntent(%q) = %+v, want nil", msg, got)
		}
	}
}

// A host-less request resolves its target from the conversation: the most
// recent IPv4 or hostname wins.
func TestDetectIntentReferentResolution(t *testing.T) {
	history := []string{
		"user: is the NAS up?",
		"assistant: nas-01.office.lan last responded at 10.0.0.44 two minutes ago",
	}

	got := DetectIntent("ping it", history)
	if got == nil {
		t.Fatal("host-less ping with resolvable history returned nil")
	}
	if got.Kind != IntentPing || got.Host != "10.0.0.44" {
		t.Errorf("resolved %+v, want ping against 10.0.0.44 (rightmost token in newest turn)", got)
	}
}

func TestDetectIntentReferentFromOlderTurn(t *testing.T) {
	history := []string{
		"assistant: gateway.lan looks unreachable",
		"user: that is bad",
	}
	got := DetectIntent("traceroute to it", history)
	if got == nil || got.Host != "gateway.lan" {
		t.Errorf("got %+v, want traceroute against gateway.lan from the older turn", got)
	}
}

func TestDetectIntentReferentUnresolvable(t *testing.T) {
	history := []string{"user: hello", "assistant: hi, what can I do?"}
	if got := DetectIntent("ping it", history); got != nil {
		t.Errorf("unresolvable referent should yield nil, got %+v", got)
	}
}

func TestDetectIntentHostlessPortTest(t *testing.T) {
	history := []string{"assistant: the web server at 192.168.40.7 stopped answering"}
	got := DetectIntent("test port 80 on it", history)
	if got == nil || got.Kind != IntentPortTest || got.Host != "192.168.40.7" || got.Port != 80 {
		t.Errorf("got %+v, want port 80 test against 192.168.40.7", got)
	}
}

func TestDetectIntentInvalidPort(t *testing.T) {
	if got := DetectIntent("test port 99999 on 10.0.0.1", nil); got != nil {
		t.Errorf("out-of-range port should yield nil, got %+v", got)
	}
}

func TestFindIPv4(t *testing.T) {
	if got := FindIPv4("look at 10.20.30.40 please"); got != "10.20.30.40" {
		t.Errorf("FindIPv4 = %q, want 10.20.30.40", got)
	}
	if got := FindIPv4("no addresses here"); got != "" {
		t.Errorf("FindIPv4 = %q, want empty", got)
	}
}
