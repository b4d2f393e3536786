package sanitize

import (
	"strings"
	"testing"
)

func TestNameStripsMarkup(t *testing.T) {
	t.Parallel()

	got := Name("  <b>Frete grátis</b><script>alert(1)</script> ")
	if got != "Frete grátis" {
		t.Fatalf("unexpected name: %q", got)
	}
}

func TestDescriptionKeepsFormattingDropsScripts(t *testing.T) {
	t.Parallel()

	got := Description(`<p onclick="x()">Ganhe <strong>10%</strong></p><script>steal()</script>`)
	if strings.Contains(got, "script") || strings.Contains(got, "onclick") {
		t.Fatalf("unsafe markup kept: %q", got)
	}
	if !strings.Contains(got, "<strong>10%</strong>") {
		t.Fatalf("formatting lost: %q", got)
	}
	if Description("   ") != "" {
		t.Fatalf("blank description should stay empty")
	}
}

func TestIdentifiersDropsBlanks(t *testing.T) {
	t.Parallel()

	got := Identifiers([]string{" shoes ", "", "<i></i>", "bags"})
	if len(got) != 2 || got[0] != "shoes" || got[1] != "bags" {
		t.Fatalf("unexpected identifiers: %#v", got)
	}
	if Identifiers(nil) != nil {
		t.Fatalf("nil input should give nil")
	}
	if DescriptionPtr(nil) != nil {
		t.Fatalf("nil pointer should give nil")
	}
}
