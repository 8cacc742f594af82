package transcript

import (
	"bytes"
	"strings"
	"testing"

	"support-widget/internal/model"
)

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	msgs := []model.Message{
		{ID: "1", Role: model.RoleUser, Content: "Hi", Timestamp: 1700000000, UserID: "a@b.com"},
		{ID: "2", Role: model.RoleBot, Content: "Hello", Timestamp: 1700000060, Author: &model.Author{Type: "admin", Name: "Dana"}},
		{ID: "3", Role: model.RoleBot, Content: "Auto reply"},
	}
	if err := Render(&buf, "conv-1", "open", msgs); err != nil {
		t.Fatalf("Render: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Conversation #conv-1 (open)", "a@b.com", "Dana", "support", "2023-11-14 22:13:20", "Hello", "Auto reply"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestRender_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&buf, "conv-1", "", nil); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(buf.String(), "no messages") {
		t.Fatalf("unexpected output: %q", buf.String())
	}
}
