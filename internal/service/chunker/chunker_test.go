// Package chunker 提供分块器单元测试
package chunker

import (
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
		wantErr bool
	}{
		{
			name:    "valid parameters",
			size:    500,
			overlap: 100,
			wantErr: false,
		},
		{
			name:    "zero overlap",
			size:    100,
			overlap: 0,
			wantErr: false,
		},
		{
			name:    "zero size",
			size:    0,
			overlap: 0,
			wantErr: true,
		},
		{
			name:    "negative size",
			size:    -1,
			overlap: 0,
			wantErr: true,
		},
		{
			name:    "negative overlap",
			size:    100,
			overlap: -1,
			wantErr: true,
		},
		{
			name:    "overlap equals size",
			size:    100,
			overlap: 100,
			wantErr: true,
		},
		{
			name:    "overlap exceeds size",
			size:    100,
			overlap: 200,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.size, tt.overlap)
			if tt.wantErr && err == nil {
				t.Errorf("New(%d, %d) expected error, got nil", tt.size, tt.overlap)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("New(%d, %d) unexpected error: %v", tt.size, tt.overlap, err)
			}
		})
	}
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name        string
		size        int
		overlap     int
		textLen     int
		wantLens    []int
		wantOffsets []int
	}{
		{
			name:        "document splits into overlapping windows",
			size:        500,
			overlap:     100,
			textLen:     1000,
			wantLens:    []int{500, 500, 200},
			wantOffsets: []int{0, 400, 800},
		},
		{
			name:        "text shorter than window",
			size:        500,
			overlap:     100,
			textLen:     300,
			wantLens:    []int{300},
			wantOffsets: []int{0},
		},
		{
			name:        "text exactly one window",
			size:        500,
			overlap:     100,
			textLen:     500,
			wantLens:    []int{500},
			wantOffsets: []int{0},
		},
		{
			name:        "empty text",
			size:        500,
			overlap:     100,
			textLen:     0,
			wantLens:    []int{},
			wantOffsets: []int{},
		},
		{
			name:        "no overlap",
			size:        100,
			overlap:     0,
			textLen:     250,
			wantLens:    []int{100, 100, 50},
			wantOffsets: []int{0, 100, 200},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.size, tt.overlap)
			if err != nil {
				t.Fatalf("New() unexpected error: %v", err)
			}

			text := strings.Repeat("a", tt.textLen)
			chunks := c.Split(text)

			if len(chunks) != len(tt.wantLens) {
				t.Fatalf("Split() count = %d, want %d", len(chunks), len(tt.wantLens))
			}
			for i, chunk := range chunks {
				if chunk.Index != i {
					t.Errorf("chunk[%d].Index = %d, want %d", i, chunk.Index, i)
				}
				if len(chunk.Text) != tt.wantLens[i] {
					t.Errorf("chunk[%d] length = %d, want %d", i, len(chunk.Text), tt.wantLens[i])
				}
				if chunk.Offset != tt.wantOffsets[i] {
					t.Errorf("chunk[%d].Offset = %d, want %d", i, chunk.Offset, tt.wantOffsets[i])
				}
			}
		})
	}
}

func TestSplitCoversFullText(t *testing.T) {
	c, err := New(50, 10)
	if err != nil {
		t.Fatalf("New() unexpected error: %v", err)
	}

	text := strings.Repeat("0123456789", 33) // 330 chars
	chunks := c.Split(text)

	// 相邻分块按步长推进，拼接去掉重叠部分应还原全文
	var rebuilt strings.Builder
	for i, chunk := range chunks {
		if i == 0 {
			rebuilt.WriteString(chunk.Text)
			continue
		}
		prevEnd := chunks[i-1].Offset + len(chunks[i-1].Text)
		overlap := prevEnd - chunk.Offset
		if overlap < 0 {
			t.Fatalf("gap between chunk %d and %d", i-1, i)
		}
		rebuilt.WriteString(chunk.Text[overlap:])
	}

	if rebuilt.String() != text {
		t.Errorf("rebuilt text does not match original")
	}
}

func TestSplitMultibyte(t *testing.T) {
	c, err := New(4, 1)
	if err != nil {
		t.Fatalf("New() unexpected error: %v", err)
	}

	// 分块按 rune 而非字节切分
	text := "你好世界再见朋友"
	chunks := c.Split(text)

	for i, chunk := range chunks {
		runes := []rune(chunk.Text)
		if len(runes) > 4 {
			t.Errorf("chunk[%d] rune length = %d, want <= 4", i, len(runes))
		}
	}
	if len(chunks) == 0 {
		t.Fatal("Split() returned no chunks")
	}
	if chunks[0].Text != "你好世界" {
		t.Errorf("chunk[0] = %q, want %q", chunks[0].Text, "你好世界")
	}
}

func TestCount(t *testing.T) {
	c, err := New(500, 100)
	if err != nil {
		t.Fatalf("New() unexpected error: %v", err)
	}

	tests := []struct {
		name    string
		textLen int
		want    int
	}{
		{name: "empty", textLen: 0, want: 0},
		{name: "single chunk", textLen: 400, want: 1},
		{name: "exact window", textLen: 500, want: 1},
		{name: "just over window", textLen: 501, want: 2},
		{name: "three chunks", textLen: 1000, want: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text := strings.Repeat("a", tt.textLen)
			got := c.Count(text)
			if got != tt.want {
				t.Errorf("Count() = %d, want %d", got, tt.want)
			}
			if split := len(c.Split(text)); got != split {
				t.Errorf("Count() = %d, but Split() produced %d chunks", got, split)
			}
		})
	}
}
