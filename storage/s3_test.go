package storage

import (
	"strings"
	"testing"
	"time"
)

func TestCheckUpload(t *testing.T) {
	allowed := splitExtensions("pdf, .JPG,png")
	tests := []struct {
		name    string
		file    string
		size    int64
		wantExt string
		wantErr bool
	}{
		{"allowed", "invoice.PDF", 10, "pdf", false},
		{"dotted allow entry", "scan.jpg", 10, "jpg", false},
		{"not allowed", "run.exe", 10, "", true},
		{"too big", "invoice.pdf", 2048, "", true},
		{"no extension", "README", 10, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ext, err := CheckUpload(tt.file, tt.size, 1024, allowed)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if ext != tt.wantExt {
				t.Fatalf("ext = %q, want %q", ext, tt.wantExt)
			}
		})
	}

	if ext, err := CheckUpload("a.bin", 1<<30, 0, nil); err != nil || ext != "bin" {
		t.Fatalf("unlimited upload rejected: %q %v", ext, err)
	}
}

func TestObjectKeyAndURL(t *testing.T) {
	key := ObjectKey("documents", 7, "pdf", time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC))
	if !strings.HasPrefix(key, "documents/7/2026/01/02/") || !strings.HasSuffix(key, ".pdf") {
		t.Fatalf("unexpected key %q", key)
	}
	url := "https://bucket.s3.ap-southeast-1.amazonaws.com/" + key
	if got := KeyFromURL(url); got != key {
		t.Fatalf("KeyFromURL = %q, want %q", got, key)
	}
	if got := KeyFromURL("https://example.com/x"); got != "" {
		t.Fatalf("KeyFromURL on foreign url = %q", got)
	}
}

func TestContentType(t *testing.T) {
	if got := ContentType("PDF"); got != "application/pdf" {
		t.Fatalf("ContentType(PDF) = %q", got)
	}
	if got := ContentType("zzz"); got != "application/octet-stream" {
		t.Fatalf("ContentType(zzz) = %q", got)
	}
}
