package validation

import "testing"

func TestIsValidEAN13(t *testing.T) {
	tests := []struct {
		name  string
		code  string
		valid bool
	}{
		{
			name:  "isbn-13",
			code:  "9780306406157",
			valid: true,
		},
		{
			name:  "ean-13",
			code:  "4006381333931",
			valid: true,
		},
		{
			name:  "invalid check digit",
			code:  "9780306406158",
			valid: false,
		},
		{
			name:  "too short",
			code:  "978030640615",
			valid: false,
		},
		{
			name:  "contains letters",
			code:  "97803064061X7",
			valid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsValidEAN13(tt.code)
			if got != tt.valid {
				t.Fatalf("IsValidEAN13(%q) = %v, want %v", tt.code, got, tt.valid)
			}
		})
	}
}

func TestIsValidItemID(t *testing.T) {
	tests := []struct {
		name  string
		id    string
		valid bool
	}{
		{
			name:  "sku",
			id:    "bk-gruffalo_01",
			valid: true,
		},
		{
			name:  "isbn barcode",
			id:    "9780306406157",
			valid: true,
		},
		{
			name:  "broken barcode",
			id:    "9780306406150",
			valid: false,
		},
		{
			name:  "short numeric code",
			id:    "1234",
			valid: true,
		},
		{
			name:  "empty",
			id:    "",
			valid: false,
		},
		{
			name:  "space",
			id:    "bk 1",
			valid: false,
		},
		{
			name:  "path separator",
			id:    "bk/1",
			valid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsValidItemID(tt.id)
			if got != tt.valid {
				t.Fatalf("IsValidItemID(%q) = %v, want %v", tt.id, got, tt.valid)
			}
		})
	}
}
