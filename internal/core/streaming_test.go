package core

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestBOMSkippingReader(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{
			name:     "file with BOM",
			input:    append([]byte{0xEF, 0xBB, 0xBF}, []byte("hello,world")...),
			expected: "hello,world",
		},
		{
			name:     "file without BOM",
			input:    []byte("hello,world"),
			expected: "hello,world",
		},
		{
			name:     "empty file",
			input:    []byte{},
			expected: "",
		},
		{
			name:     "only BOM",
			input:    []byte{0xEF, 0xBB, 0xBF},
			expected: "",
		},
		{
			name:     "partial BOM at start",
			input:    []byte{0xEF, 0xBB, 'a', 'b', 'c'},
			expected: string([]byte{0xEF, 0xBB, 'a', 'b', 'c'}),
		},
		{
			name:     "short file",
			input:    []byte("a"),
			expected: "a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := io.ReadAll(NewBOMSkippingReader(bytes.NewReader(tt.input)))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(result) != tt.expected {
				t.Errorf("got %q, want %q", string(result), tt.expected)
			}
		})
	}
}

func TestBOMSkippingReader_SmallBuffer(t *testing.T) {
	input := append([]byte{0xEF, 0xBB, 0xBF}, []byte("abcdef")...)
	r := NewBOMSkippingReader(bytes.NewReader(input))

	var out []byte
	buf := make([]byte, 2)
	for {
		n, err := r.Read(buf)
		out = append(out, buf[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if string(out) != "abcdef" {
		t.Errorf("got %q, want %q", out, "abcdef")
	}
}

func TestCRLineReader(t *testing.T) {
	out, err := io.ReadAll(NewCRLineReader(strings.NewReader("a,b\r1,2\r")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != "a,b\n1,2\n" {
		t.Errorf("got %q", out)
	}
}

func TestCountLines(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int
	}{
		{"empty", "", 0},
		{"trailing newline", "a\nb\n", 2},
		{"no trailing newline", "a\nb", 2},
		{"crlf", "a\r\nb\r\n", 2},
		{"single line", "header", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CountLines(strings.NewReader(tt.input))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("CountLines() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCountLines_LargeInput(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 200000; i++ {
		b.WriteString("x,y\n")
	}
	got, err := CountLines(strings.NewReader(b.String()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 200000 {
		t.Errorf("CountLines() = %d, want 200000", got)
	}
}

func TestDecode(t *testing.T) {
	// "café" in windows-1252
	latin := []byte{'c', 'a', 'f', 0xE9}

	r, err := Decode(bytes.NewReader(latin), "windows-1252")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(out) != "café" {
		t.Errorf("got %q, want %q", out, "café")
	}

	if _, err := Decode(bytes.NewReader(latin), "no-such-encoding"); err == nil {
		t.Error("expected error for unknown encoding")
	}
}

func TestIsUTF8(t *testing.T) {
	for _, name := range []string{"utf-8", "UTF-8", "utf8", "UTF_8"} {
		if !IsUTF8(name) {
			t.Errorf("IsUTF8(%q) = false", name)
		}
	}
	if IsUTF8("latin1") {
		t.Error("IsUTF8(latin1) = true")
	}
}
