package naming

import (
	"math/rand"
	"regexp"
	"strings"
	"testing"
)

func TestSlug(t *testing.T) {
	tests := []struct {
		name   string
		title  string
		maxLen int
		want   string
	}{
		{"simple", "Add Email Validation!!", 50, "add-email-validation"},
		{"empty", "", 50, ""},
		{"only punctuation", "!!! ??? ---", 50, ""},
		{"leading and trailing", "  --Hello World--  ", 50, "hello-world"},
		{"collapses runs", "a  //  b", 50, "a-b"},
		{"digits kept", "Upgrade to v2.0", 50, "upgrade-to-v2-0"},
		{"truncate no trailing dash", "abcd efgh", 5, "abcd"},
		{"truncate exact", "abcde", 5, "abcde"},
		{"default length", strings.Repeat("x", 80), 0, strings.Repeat("x", DefaultSlugLen)},
		{"non ascii becomes separator", "Café crème", 50, "caf-cr-me"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Slug(tt.title, tt.maxLen)
			if got != tt.want {
				t.Errorf("Slug(%q, %d) = %q, want %q", tt.title, tt.maxLen, got, tt.want)
			}
		})
	}
}

var slugChars = regexp.MustCompile(`^[a-z0-9-]*$`)

func TestSlug_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	alphabet := []rune("abcXYZ019 -_!?/.é漢\t")
	for i := 0; i < 2000; i++ {
		n := rng.Intn(40)
		var b strings.Builder
		for j := 0; j < n; j++ {
			b.WriteRune(alphabet[rng.Intn(len(alphabet))])
		}
		title := b.String()
		maxLen := 1 + rng.Intn(20)

		got := Slug(title, maxLen)
		if !slugChars.MatchString(got) {
			t.Fatalf("Slug(%q) = %q contains invalid characters", title, got)
		}
		if len(got) > maxLen {
			t.Fatalf("Slug(%q, %d) = %q exceeds max length", title, maxLen, got)
		}
		if strings.HasPrefix(got, "-") || strings.HasSuffix(got, "-") {
			t.Fatalf("Slug(%q) = %q starts or ends with a dash", title, got)
		}
		if strings.Contains(got, "--") {
			t.Fatalf("Slug(%q) = %q contains a double dash", title, got)
		}
	}
}

func TestBranchName(t *testing.T) {
	if got := BranchName("42", "Add Email Validation!!"); got != "issue-42/add-email-validation" {
		t.Errorf("BranchName = %q, want %q", got, "issue-42/add-email-validation")
	}
	if got := BranchName("7", "???"); got != "issue-7" {
		t.Errorf("BranchName with empty slug = %q, want %q", got, "issue-7")
	}
}
