package llm

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		wantRunes int
		wantCut   bool
	}{
		{"short", "короткий текст", utf8.RuneCountInString("короткий текст"), false},
		{"exactly at bound", strings.Repeat("ы", MaxContentChars), MaxContentChars, false},
		{"one over", strings.Repeat("ы", MaxContentChars+1), MaxContentChars, true},
		{"far over", strings.Repeat("ab", MaxContentChars), MaxContentChars, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Truncate(tt.in)
			cut := strings.HasSuffix(got, TruncationMarker)
			if cut != tt.wantCut {
				t.Fatalf("marker present = %v, want %v", cut, tt.wantCut)
			}
			body := strings.TrimSuffix(got, TruncationMarker)
			if n := utf8.RuneCountInString(body); n != tt.wantRunes {
				t.Errorf("content length = %d, want %d", n, tt.wantRunes)
			}
			if !strings.HasPrefix(tt.in, body) {
				t.Error("truncated content is not a prefix of the input")
			}
			if limit := MaxContentChars + utf8.RuneCountInString(TruncationMarker); utf8.RuneCountInString(got) > limit {
				t.Errorf("payload %d runes exceeds bound %d", utf8.RuneCountInString(got), limit)
			}
		})
	}
}

func TestNewRequest_Truncates(t *testing.T) {
	req := NewRequest(SystemPrompt, strings.Repeat("x", MaxContentChars+50))
	if req.SystemPrompt != SystemPrompt {
		t.Error("system prompt altered")
	}
	if !strings.HasSuffix(req.UserContent, TruncationMarker) {
		t.Error("user content not truncated")
	}
}
