package db

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestReorderItemsRejectsDuplicateIDs(t *testing.T) {
	// The duplicate check must run before any position is written: a list
	// like [A, A] passes a pure count comparison against a 2-item project
	// but would leave A and B tied.
	a := uuid.New()
	db := &DB{}

	err := db.ReorderItems(context.Background(), uuid.New(), []uuid.UUID{a, a})
	if err == nil {
		t.Fatal("expected error for duplicate item ids")
	}
	if !strings.Contains(err.Error(), "more than once") {
		t.Errorf("unexpected error: %v", err)
	}
}
