package utils

import "testing"

func TestIsValidFileExtension(t *testing.T) {
	allowed := []string{"pdf", "XLSX"}
	tests := []struct {
		name string
		file string
		want bool
	}{
		{"allowed", "report.pdf", true},
		{"case insensitive", "results.xlsx", true},
		{"double extension", "archive.tar.pdf", true},
		{"not allowed", "script.sh", false},
		{"no extension", "README", false},
		{"trailing dot", "file.", false},
		{"empty", "", false},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if got := IsValidFileExtension(tc.file, allowed); got != tc.want {
				t.Fatalf("IsValidFileExtension(%q) = %v, want %v", tc.file, got, tc.want)
			}
		})
	}
}

func TestFormatAmount(t *testing.T) {
	tests := map[float64]string{10: "10", 2.5: "2.5", 0: "0", 100.25: "100.25"}
	for in, want := range tests {
		if got := FormatAmount(in); got != want {
			t.Fatalf("FormatAmount(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := CheckPassword("s3cret", hash); err != nil {
		t.Fatalf("expected match: %v", err)
	}
	if err := CheckPassword("wrong", hash); err == nil {
		t.Fatalf("expected mismatch")
	}
}

func TestGenerateRandomString(t *testing.T) {
	s, err := GenerateRandomString(9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s) != 9 {
		t.Fatalf("expected length 9, got %d", len(s))
	}
}
