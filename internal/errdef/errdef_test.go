package errdef

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodeOfWalksWrappedChain(t *testing.T) {
	base := New(CodeParse, "bad payload on line %d", 12)
	wrapped := fmt.Errorf("outer: %w", base)

	if code := CodeOf(wrapped); code != CodeParse {
		t.Fatalf("expected parse code, got %q", code)
	}
	if code := CodeOf(errors.New("plain")); code != CodeUnknown {
		t.Fatalf("expected unknown code for untyped error, got %q", code)
	}
}

func TestWrapNilReturnsNil(t *testing.T) {
	if err := Wrap(CodeFilesystem, nil, "read file"); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestMessageStripsCause(t *testing.T) {
	cause := errors.New("permission denied")
	err := Wrap(CodeFilesystem, cause, "open settings")

	if got := Message(err); got != "open settings" {
		t.Fatalf("expected annotated message, got %q", got)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause to survive")
	}
	if got := err.Error(); got != "open settings: permission denied" {
		t.Fatalf("unexpected Error() output: %q", got)
	}
}
