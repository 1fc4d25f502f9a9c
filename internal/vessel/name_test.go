package vessel

import "testing"

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"helsinki", "Helsinki"},
		{"HELSINKI", "Helsinki"},
		{"s/y AURORA", "S/y aurora"},
		{"viking GRACE ", "Viking grace "},
		{" aland", " aland"},
		{"éLAN", "Élan"},
		{"x", "X"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeName(tt.in); got != tt.want {
			t.Errorf("NormalizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
