package validation

import (
	"strings"
	"testing"
)

func TestIsValidLuhn(t *testing.T) {
	tests := []struct {
		name   string
		number string
		valid  bool
	}{
		{
			name:   "valid example 1",
			number: "79927398713",
			valid:  true,
		},
		{
			name:   "valid example 2",
			number: "4539578763621486",
			valid:  true,
		},
		{
			name:   "invalid checksum",
			number: "79927398710",
			valid:  false,
		},
		{
			name:   "contains letters",
			number: "1234a67890",
			valid:  false,
		},
		{
			name:   "empty string",
			number: "",
			valid:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsValidLuhn(tt.number)
			if got != tt.valid {
				t.Fatalf("IsValidLuhn(%q) = %v, want %v", tt.number, got, tt.valid)
			}
		})
	}
}

func TestIsValidBarcode(t *testing.T) {
	tests := []struct {
		name    string
		barcode string
		valid   bool
	}{
		{name: "codabar", barcode: "31234000056786", valid: true},
		{name: "codabar bad check digit", barcode: "31234000056780", valid: false},
		{name: "short numeric", barcode: "79927398713", valid: true},
		{name: "alphanumeric", barcode: "QA-76-9", valid: true},
		{name: "space", barcode: "QA 76", valid: false},
		{name: "non ascii", barcode: "книга-1", valid: false},
		{name: "empty", barcode: "", valid: false},
		{name: "too long", barcode: strings.Repeat("A", 65), valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsValidBarcode(tt.barcode)
			if got != tt.valid {
				t.Fatalf("IsValidBarcode(%q) = %v, want %v", tt.barcode, got, tt.valid)
			}
		})
	}
}
