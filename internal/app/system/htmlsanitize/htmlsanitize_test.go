package htmlsanitize_test

import (
	"strings"
	"testing"

	"github.com/dalemusser/assistanthub/internal/app/system/htmlsanitize"
)

func TestSanitize_Empty(t *testing.T) {
	result := htmlsanitize.Sanitize("")
	if result != "" {
		t.Errorf("expected empty string, got %q", result)
	}
}

func TestSanitize_PlainText(t *testing.T) {
	result := htmlsanitize.Sanitize("Helps with algebra homework")
	if result != "Helps with algebra homework" {
		t.Errorf("expected plain text unchanged, got %q", result)
	}
}

func TestSanitize_SafeHTML(t *testing.T) {
	input := "<p><strong>Bold</strong> and <em>italic</em></p>"
	result := htmlsanitize.Sanitize(input)
	if result != input {
		t.Errorf("expected safe HTML preserved, got %q", result)
	}
}

func TestSanitize_RemovesScript(t *testing.T) {
	input := "<p>Hello</p><script>alert('xss')</script>"
	result := htmlsanitize.Sanitize(input)
	if result != "<p>Hello</p>" {
		t.Errorf("expected script removed, got %q", result)
	}
}

func TestSanitize_RemovesDangerousAttributes(t *testing.T) {
	tests := []struct {
		name  string
		input string
		bad   string
	}{
		{"onclick", `<button onclick="alert('xss')">Click</button>`, "onclick"},
		{"onerror", `<img src="x" onerror="alert('xss')">`, "onerror"},
		{"javascript href", `<a href="javascript:alert('xss')">Click</a>`, "javascript:"},
		{"iframe", `<p>Content</p><iframe src="https://evil.com"></iframe>`, "iframe"},
		{"form", `<form action="/submit"><input type="text" name="data"></form>`, "<input"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := htmlsanitize.Sanitize(tt.input)
			if strings.Contains(result, tt.bad) {
				t.Errorf("expected %q to be removed, got %q", tt.bad, result)
			}
		})
	}
}

func TestSanitize_AllowsSafeLinks(t *testing.T) {
	result := htmlsanitize.Sanitize(`<a href="https://example.com">Link</a>`)
	if !strings.Contains(result, "https://example.com") {
		t.Errorf("expected safe link preserved, got %q", result)
	}
}

func TestSanitize_AllowsListsAndFormatting(t *testing.T) {
	for _, input := range []string{
		"<ul><li>Item 1</li><li>Item 2</li></ul>",
		"<u>underline</u> <s>strikethrough</s> <mark>mark</mark>",
		"<pre><code>function test() {}</code></pre>",
	} {
		if result := htmlsanitize.Sanitize(input); result != input {
			t.Errorf("expected %q preserved, got %q", input, result)
		}
	}
}

func TestStripTags(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"Tutor", "Tutor"},
		{"<b>Tutor</b>", "Tutor"},
		{"  Tutor <script>x</script> ", "Tutor"},
	}
	for _, tt := range tests {
		if got := htmlsanitize.StripTags(tt.in); got != tt.want {
			t.Errorf("StripTags(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsPlainText(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"", true},
		{"Hello, World!", true},
		{"<p>Hello</p>", false},
		{"5 < 10", true},
		{"5 > 3", true},
	}
	for _, tt := range tests {
		if got := htmlsanitize.IsPlainText(tt.in); got != tt.want {
			t.Errorf("IsPlainText(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
