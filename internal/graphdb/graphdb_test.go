package graphdb

import (
	"context"
	"testing"
)

func TestNewClient_RejectsMissingCredentials(t *testing.T) {
	if _, err := NewClient(context.Background(), "", "neo4j", "pw", ""); err == nil {
		t.Fatalf("expected an error when uri is empty")
	}
	if _, err := NewClient(context.Background(), "bolt://localhost:7687", "", "pw", ""); err == nil {
		t.Fatalf("expected an error when user is empty")
	}
}
