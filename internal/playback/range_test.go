package playback

import "testing"

func TestResolveRange(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		size       int64
		wantOffset int64
		wantLength int64
		wantFull   bool
		wantErr    bool
	}{
		{name: "no header", header: "", size: 1000, wantFull: true},
		{name: "closed range", header: "bytes=0-499", size: 1000, wantOffset: 0, wantLength: 500},
		{name: "open ended", header: "bytes=500-", size: 1000, wantOffset: 500, wantLength: 500},
		{name: "single byte", header: "bytes=0-0", size: 1000, wantOffset: 0, wantLength: 1},
		{name: "suffix", header: "bytes=-200", size: 1000, wantOffset: 800, wantLength: 200},
		{name: "suffix longer than file", header: "bytes=-5000", size: 1000, wantOffset: 0, wantLength: 1000},
		{name: "end clamped to size", header: "bytes=900-1999", size: 1000, wantOffset: 900, wantLength: 100},
		{name: "unknown unit ignored", header: "items=0-4", size: 1000, wantFull: true},
		{name: "garbled ignored", header: "bytes=abc", size: 1000, wantFull: true},
		{name: "inverted range ignored", header: "bytes=500-100", size: 1000, wantFull: true},
		{name: "negative suffix ignored", header: "bytes=--5", size: 1000, wantFull: true},
		{name: "multipart set ignored", header: "bytes=0-1,5-6", size: 1000, wantFull: true},
		{name: "start past end of file", header: "bytes=1000-", size: 1000, wantErr: true},
		{name: "zero suffix", header: "bytes=-0", size: 1000, wantErr: true},
		{name: "any range of empty file", header: "bytes=0-", size: 0, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, partial, err := ResolveRange(tt.header, tt.size)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ResolveRange(%q) err = nil, want unsatisfiable", tt.header)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveRange(%q) err = %v", tt.header, err)
			}
			if tt.wantFull {
				if partial {
					t.Fatalf("ResolveRange(%q) = %+v, want full-file fallback", tt.header, got)
				}
				return
			}
			if !partial {
				t.Fatalf("ResolveRange(%q) fell back to the full file", tt.header)
			}
			if got.Offset != tt.wantOffset || got.Length != tt.wantLength {
				t.Errorf("ResolveRange(%q) = {%d, %d}, want {%d, %d}",
					tt.header, got.Offset, got.Length, tt.wantOffset, tt.wantLength)
			}
		})
	}
}

func TestByteRange_ContentRange(t *testing.T) {
	br := ByteRange{Offset: 2, Length: 4}
	if got := br.ContentRange(10); got != "bytes 2-5/10" {
		t.Errorf("ContentRange(10) = %q, want %q", got, "bytes 2-5/10")
	}
}
