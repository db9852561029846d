package hostinfo

import (
	"context"
	"runtime"
	"testing"
)

func TestCollect(t *testing.T) {
	info := Collect(context.Background())

	if info.Host.Architecture != runtime.GOARCH {
		t.Errorf("Architecture = %q, want %q", info.Host.Architecture, runtime.GOARCH)
	}
	if info.Host.OS == "" {
		t.Error("OS should never be empty")
	}
	if info.Runtime.GOMAXPROCS < 1 {
		t.Errorf("GOMAXPROCS = %d, want >= 1", info.Runtime.GOMAXPROCS)
	}
	if info.Timestamp.IsZero() {
		t.Error("Timestamp not set")
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   uint64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{16 * 1024 * 1024 * 1024, "16.0 GiB"},
	}

	for _, tt := range tests {
		if got := FormatBytes(tt.in); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
