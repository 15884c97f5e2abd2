package diff

import (
	"strings"
	"testing"
)

func TestGenerateTrimsContext(t *testing.T) {
	before := []byte("a\nb\nc\nd\ne\nf\ng\n")
	after := []byte("a\nb\nc\nD\ne\nf\ng\n")

	lines := Generate(before, after, 1)
	var kinds []string
	var texts []string
	for _, l := range lines {
		kinds = append(kinds, l.Kind)
		texts = append(texts, l.Text)
	}
	wantKinds := []string{"context", "del", "add", "context"}
	wantTexts := []string{"c", "d", "D", "e"}
	if strings.Join(kinds, ",") != strings.Join(wantKinds, ",") {
		t.Errorf("kinds = %v, want %v", kinds, wantKinds)
	}
	if strings.Join(texts, ",") != strings.Join(wantTexts, ",") {
		t.Errorf("texts = %v, want %v", texts, wantTexts)
	}
}

func TestGenerateIdenticalContent(t *testing.T) {
	content := []byte(`{"_id": "M1"}` + "\n")
	if lines := Generate(content, content, 2); lines != nil {
		t.Errorf("expected no diff for identical content, got %v", lines)
	}
}

func TestGenerateSkipsBinary(t *testing.T) {
	if lines := Generate([]byte{0x50, 0x4b, 0x00, 0x01}, []byte("text"), 2); lines != nil {
		t.Errorf("expected no diff for binary content, got %v", lines)
	}
}

func TestFormat(t *testing.T) {
	lines := []Line{
		{Kind: "context", Text: `"name": "flow"`, OldLine: 1, NewLine: 1},
		{Kind: "del", Text: `"_id": "F1"`, OldLine: 2},
		{Kind: "add", Text: `"_id": "M1"`, NewLine: 2},
	}

	plain := Format("flows/Main/chart.json", lines, false)
	want := "--- flows/Main/chart.json\n" +
		` "name": "flow"` + "\n" +
		`-"_id": "F1"` + "\n" +
		`+"_id": "M1"` + "\n"
	if plain != want {
		t.Errorf("plain format:\n%s\nwant:\n%s", plain, want)
	}

	colored := Format("flows/Main/chart.json", lines, true)
	if !strings.Contains(colored, redColor) || !strings.Contains(colored, greenColor) {
		t.Error("colored output missing color codes")
	}

	if got := Format("any", nil, false); got != "" {
		t.Errorf("expected empty output for no lines, got %q", got)
	}
}
