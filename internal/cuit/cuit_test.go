package cuit

import "testing"

func TestValid(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want bool
	}{
		{"valid empresa", "30710410220", true},
		{"valid persona", "20267565393", true},
		{"valid with dashes", "30-50001091-2", true},
		{"valid with dots and spaces", "30.70907678.3 ", true},
		{"valid prefix 27", "27123456780", true},
		{"valid prefix 33", "33712554385", true},
		{"remainder 10 with prefix 23 maps to 9", "23100000139", true},
		{"remainder 10 with prefix 30 is invalid", "30100000089", false},
		{"wrong check digit", "30710410221", false},
		{"all zeros", "00000000000", false},
		{"too short", "3071041022", false},
		{"too long", "307104102200", false},
		{"letters", "30A10410220", false},
		{"letters with right length", "3071041022X", false},
		{"empty", "", false},
		{"only separators", "--..  ", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Valid(tt.id); got != tt.want {
				t.Errorf("Valid(%q) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"30-71041022-0", "30710410220"},
		{"30.71041022.0", "30710410220"},
		{" 30 71041022 0 ", "30710410220"},
		{"CUIT: 30710410220", "30710410220"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
