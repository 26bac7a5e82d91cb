package extract

import "testing"

func TestStripMarkup(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain text", "hello world", "hello world"},
		{"tags become spaces", "<p>one</p><p>two</p>", "one two"},
		{"script removed with content", "a<script type=\"text/javascript\">var x = '<b>';</script>b", "a b"},
		{"style removed with content", "<style>\nbody { color: red }\n</style>text", "text"},
		{"uppercase script", "x<SCRIPT>alert(1)</SCRIPT >y", "x y"},
		{"multiline script", "<script>\nline1\nline2\n</script>ok", "ok"},
		{"whitespace collapsed", "a \n\t  b", "a b"},
		{"nbsp collapsed", "a\u00a0\u00a0b", "a b"},
		{"attributes", `<a href="/offer" class="x">Оферта</a>`, "Оферта"},
		{"entities kept", "<b>&amp;</b>", "&amp;"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripMarkup(tt.in); got != tt.want {
				t.Errorf("StripMarkup(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestStripMarkup_Idempotent(t *testing.T) {
	inputs := []string{
		"<html><head><title>T</title><style>p{}</style></head><body><p>Публичная   оферта</p><script>x()</script></body></html>",
		"a < b and c > d",
		"<!-- comment --> text <br/> more",
		"<script>unterminated",
	}
	for _, in := range inputs {
		once := StripMarkup(in)
		if twice := StripMarkup(once); twice != once {
			t.Errorf("StripMarkup not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}
