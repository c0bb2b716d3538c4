package origin

import "testing"

func TestValidateStrictEquality(t *testing.T) {
	cases := []struct {
		incoming, expected string
		want               bool
	}{
		{"https://trusted.example", "https://trusted.example", true},
		{"https://evil.example", "https://trusted.example", false},
		{"http://trusted.example", "https://trusted.example", false},
		{"https://trusted.example:8443", "https://trusted.example", false},
		{"", "https://trusted.example", false},
	}

	for _, tc := range cases {
		if got := Validate(tc.incoming, tc.expected); got != tc.want {
			t.Errorf("Validate(%q, %q) = %v, want %v", tc.incoming, tc.expected, got, tc.want)
		}
	}
}

func TestValidateWildcard(t *testing.T) {
	for _, incoming := range []string{"https://anyone.example", "http://localhost:1234", ""} {
		if !Validate(incoming, Wildcard) {
			t.Errorf("wildcard should accept %q", incoming)
		}
	}
}

func TestFromAddress(t *testing.T) {
	cases := []struct {
		address string
		want    string
	}{
		{"wss://hub.example:8443/channel", "wss://hub.example:8443"},
		{"ws://localhost:7070", "ws://localhost:7070"},
		{"https://Hub.Example/path?x=1", "https://hub.example"},
	}

	for _, tc := range cases {
		got, err := FromAddress(tc.address)
		if err != nil {
			t.Fatalf("FromAddress(%q) failed: %v", tc.address, err)
		}
		if got != tc.want {
			t.Errorf("FromAddress(%q) = %q, want %q", tc.address, got, tc.want)
		}
	}
}

func TestFromAddressRejectsBareHost(t *testing.T) {
	if _, err := FromAddress("hub.example:8443"); err == nil {
		t.Error("expected error for address without scheme")
	}
	if _, err := FromAddress("://nope"); err == nil {
		t.Error("expected error for unparseable address")
	}
}
