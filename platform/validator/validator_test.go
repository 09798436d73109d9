package validator

import (
	"strings"
	"testing"

	"leadflow_backend/platform/apperr"
)

type target struct {
	Host  string `validate:"notblank"`
	Queue string `validate:"notblank"`
	Note  string
}

func TestStructAcceptsFilledFields(t *testing.T) {
	if err := New().Struct(target{Host: "10.0.0.5", Queue: "inbound"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestStructRejectsBlankFields(t *testing.T) {
	err := New().Struct(target{Host: "10.0.0.5", Queue: "  \t"})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "Queue notblank") || strings.Contains(err.Error(), "Host") {
		t.Fatalf("expected only Queue reported, got %q", err.Error())
	}
}

func TestStructNonStructIsInternal(t *testing.T) {
	err := New().Struct("not a struct")
	if !apperr.Is(err, apperr.KindInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}
}
