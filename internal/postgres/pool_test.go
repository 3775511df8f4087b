package postgres

import (
	"context"
	"testing"
)

func TestNewPool_InvalidURLRejected(t *testing.T) {
	t.Parallel()

	_, err := NewPool(context.Background(), "not-a-valid-dsn://###", nil)
	if err == nil {
		t.Fatal("expected error for malformed database URL")
	}
}
