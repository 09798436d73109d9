package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestGetKindFollowsWrappedChain(t *testing.T) {
	base := Transport("fetch website", context.DeadlineExceeded).WithOp("website.Fetch")
	wrapped := fmt.Errorf("ingest %s: %w", "site-a", base)

	if got := GetKind(wrapped); got != KindTransport {
		t.Fatalf("expected transport kind, got %s", got)
	}
	if !errors.Is(wrapped, context.DeadlineExceeded) {
		t.Fatalf("expected wrapped error to unwrap to deadline exceeded")
	}
}

func TestGetKindUnknownForPlainErrors(t *testing.T) {
	if got := GetKind(errors.New("boom")); got != KindUnknown {
		t.Fatalf("expected unknown kind, got %s", got)
	}
	if Is(nil, KindInternal) {
		t.Fatalf("nil error must not match any kind")
	}
}

func TestErrorMessageIncludesOpAndCause(t *testing.T) {
	err := Wrap(KindInternal, "insert leads", errors.New("connection reset")).WithOp("repository.IngestBatch")
	want := "repository.IngestBatch: insert leads: connection reset"
	if err.Error() != want {
		t.Fatalf("expected %q, got %q", want, err.Error())
	}
}

func TestWithResponseKeepsUpstreamDetails(t *testing.T) {
	err := Transport("upstream error", nil).WithResponse(502, []byte(`{"error":"bad gateway"}`))
	e, ok := As(fmt.Errorf("outer: %w", err))
	if !ok {
		t.Fatalf("expected *Error in chain")
	}
	if e.Status != 502 || string(e.Body) != `{"error":"bad gateway"}` {
		t.Fatalf("unexpected response details: %d %s", e.Status, e.Body)
	}
}
