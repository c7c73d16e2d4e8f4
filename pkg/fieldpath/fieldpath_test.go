package fieldpath

import "testing"

func sample() map[string]any {
	return map[string]any{
		"name":     "",
		"hostname": "switch-lab",
		"mac":      "aa:bb:cc:dd:ee:ff",
		"state":    float64(1),
		"uplink": map[string]any{
			"remote_port": float64(12),
			"device_mac":  "11:22:33:44:55:66",
		},
		"network": map[string]any{
			"ip": "10.0.0.7",
		},
		"wired": true,
	}
}

func TestLookupOrder(t *testing.T) {
	tests := []struct {
		name string
		keys []string
		want string
	}{
		{"skips empty string candidates", []string{"name", "hostname"}, "switch-lab"},
		{"first present wins", []string{"hostname", "mac"}, "switch-lab"},
		{"dotted path", []string{"alias", "network.ip"}, "10.0.0.7"},
		{"missing everywhere", []string{"alias", "label"}, ""},
		{"dotted through non-object", []string{"hostname.inner", "mac"}, "aa:bb:cc:dd:ee:ff"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := String(sample(), tt.keys...); got != tt.want {
				t.Errorf("String(%v) = %q, want %q", tt.keys, got, tt.want)
			}
		})
	}
}

func TestLookupNilMap(t *testing.T) {
	if got := Lookup(nil, "anything"); got != nil {
		t.Errorf("Lookup(nil) = %v, want nil", got)
	}
}

func TestNumber(t *testing.T) {
	obj := sample()

	if n, ok := Number(obj, "state"); !ok || n != 1 {
		t.Errorf("Number(state) = %v, %v; want 1, true", n, ok)
	}
	if n, ok := Number(obj, "uplink.remote_port"); !ok || n != 12 {
		t.Errorf("Number(uplink.remote_port) = %v, %v; want 12, true", n, ok)
	}
	if _, ok := Number(obj, "hostname"); ok {
		t.Error("Number(hostname) should not parse a hostname as numeric")
	}

	// String-encoded numbers appear in some controller firmware versions.
	obj["speed"] = "1000"
	if n, ok := Number(obj, "speed"); !ok || n != 1000 {
		t.Errorf("Number(speed) = %v, %v; want 1000, true", n, ok)
	}
}

func TestBool(t *testing.T) {
	obj := sample()

	tests := []struct {
		key    string
		want   bool
		wantOK bool
	}{
		{"wired", true, true},
		{"state", true, true}, // numeric 1
		{"missing", false, false},
	}
	for _, tt := range tests {
		got, ok := Bool(obj, tt.key)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("Bool(%q) = %v, %v; want %v, %v", tt.key, got, ok, tt.want, tt.wantOK)
		}
	}

	obj["up"] = "false"
	if got, ok := Bool(obj, "up"); !ok || got {
		t.Errorf(`Bool("false" string) = %v, %v; want false, true`, got, ok)
	}
}

func TestHasDistinguishesAbsentFromEmpty(t *testing.T) {
	obj := sample()

	// "name" is present but empty: Has sees it, Lookup skips it.
	if !Has(obj, "name") {
		t.Error("Has(name) = false for a present-but-empty field")
	}
	if got := String(obj, "name"); got != "" {
		t.Errorf("String(name) = %q, want empty", got)
	}
	if Has(obj, "status", "state2") {
		t.Error("Has reported a field that does not exist")
	}
	if !Has(obj, "uplink.device_mac") {
		t.Error("Has(uplink.device_mac) = false for a nested field")
	}
}

func TestStringify(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"x", "x"},
		{true, "true"},
		{float64(2.5), "2.5"},
		{float64(100), "100"},
		{int64(7), "7"},
	}
	for _, tt := range tests {
		if got := Stringify(tt.in); got != tt.want {
			t.Errorf("Stringify(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
