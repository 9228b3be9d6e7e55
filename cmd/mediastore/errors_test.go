package main

import (
	"fmt"
	"testing"

	"mediastore/internal/dirtree"
	"mediastore/internal/media"
	"mediastore/internal/store"
)

func TestFormatCLIError_StructureFullGuidance(t *testing.T) {
	err := fmt.Errorf("write document: %w", dirtree.ErrStructureFull)
	lines := formatCLIError(err)
	if len(lines) != 2 || lines[0] != err.Error() {
		t.Fatalf("expected message and hint, got %v", lines)
	}
}

func TestFormatCLIError_DuplicateGuidance(t *testing.T) {
	err := &store.DuplicateError{Table: "documents", ID: "x"}
	lines := formatCLIError(err)
	if !containsLine(lines, "hint: an entity with this id is already stored; use a new id or the replace command.") {
		t.Fatalf("expected duplicate guidance, got %v", lines)
	}
}

func TestFormatCLIError_BatchGuidance(t *testing.T) {
	err := &media.BatchError{Index: 2, ID: "abc", Err: dirtree.ErrStructureFull}
	lines := formatCLIError(err)
	if !containsLine(lines, "hint: nothing from this batch was stored; fix the item and retry the whole batch.") {
		t.Fatalf("expected batch guidance, got %v", lines)
	}
	if len(lines) != 3 {
		t.Fatalf("expected batch and structure hints, got %v", lines)
	}
}

func TestFormatCLIError_PlainError(t *testing.T) {
	lines := formatCLIError(fmt.Errorf("boom"))
	if len(lines) != 1 || lines[0] != "boom" {
		t.Fatalf("expected only the message, got %v", lines)
	}
	if formatCLIError(nil) != nil {
		t.Fatal("expected nil for nil error")
	}
}

func containsLine(lines []string, expected string) bool {
	for _, line := range lines {
		if line == expected {
			return true
		}
	}
	return false
}
