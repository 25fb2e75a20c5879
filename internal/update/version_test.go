package update

import "testing"

func TestIsNewer(t *testing.T) {
	tests := []struct {
		current, remote string
		want            bool
	}{
		{"1.0.0", "1.0.0", false},
		{"1.0.0", "1.0.1", true},
		{"2.0", "1.9.9", false},
		{"1.0", "1.0.0", false},
		{"1.2", "1.2.1", true},
		{"1.0.8", "1.0.10", true},
		{"1.10", "1.9", false},
		{"1.0.0", "2", true},
		{"", "0.0.1", true},
		{"", "", false},
		{"1.0.0", "1.0.0.0.0", false},
	}
	for _, tt := range tests {
		if got := IsNewer(tt.current, tt.remote); got != tt.want {
			t.Errorf("IsNewer(%q, %q) = %v, want %v", tt.current, tt.remote, got, tt.want)
		}
	}
}

func TestIsNewer_IgnoresNonNumericSegments(t *testing.T) {
	// "1.x.2" compares as "1.2"
	if !IsNewer("1.1", "1.x.2") {
		t.Error(`IsNewer("1.1", "1.x.2") should be true`)
	}
	if IsNewer("1.2", "1.beta.2") {
		t.Error(`IsNewer("1.2", "1.beta.2") should be false`)
	}
	if IsNewer("1.0", "1.0-rc1") {
		t.Error(`"1.0-rc1" drops its last segment and equals "1"`)
	}
}

func TestIsNewer_Antisymmetric(t *testing.T) {
	versions := []string{"0", "0.1", "1", "1.0.1", "1.2", "1.10", "2.0.0", "10"}
	for _, a := range versions {
		for _, b := range versions {
			if IsNewer(a, b) && IsNewer(b, a) {
				t.Errorf("IsNewer(%q, %q) and IsNewer(%q, %q) both true", a, b, b, a)
			}
		}
	}
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1.0.8", "1.0.8"},
		{" 2.1 ", "2.1"},
		{"1.-1.3", "1.3"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ParseVersion(tt.in).String(); got != tt.want {
			t.Errorf("ParseVersion(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeTag(t *testing.T) {
	tests := map[string]string{
		"v1.0.9": "1.0.9",
		"V2.0":   "2.0",
		"1.0":    "1.0",
		"vv1":    "v1",
		"":       "",
	}
	for in, want := range tests {
		if got := normalizeTag(in); got != want {
			t.Errorf("normalizeTag(%q) = %q, want %q", in, got, want)
		}
	}
}
