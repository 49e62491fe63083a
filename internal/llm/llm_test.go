package llm

import (
	"context"
	"testing"
)

func TestNew_DisabledByDefault(t *testing.T) {
	c := New(context.Background(), Config{}, nil)
	if c.Enabled() {
		t.Fatalf("expected a disabled client with an empty config")
	}
	if c.Provider() != ProviderNone {
		t.Fatalf("want ProviderNone, got %q", c.Provider())
	}
}

func TestComplete_NoProviderReturnsEmptyString(t *testing.T) {
	c := New(context.Background(), Config{}, nil)
	if got := c.Complete(context.Background(), "sys", "user"); got != "" {
		t.Fatalf("expected empty completion from a disabled client, got %q", got)
	}
}

func TestNew_OpenAISelectedWhenKeyPresent(t *testing.T) {
	c := New(context.Background(), Config{Enabled: true, OpenAIAPIKey: "sk-test"}, nil)
	if c.Provider() != ProviderOpenAI {
		t.Fatalf("want ProviderOpenAI, got %q", c.Provider())
	}
	if !c.Enabled() {
		t.Fatalf("expected client to be enabled")
	}
}

func TestNew_EveryClientGetsARateLimiter(t *testing.T) {
	c := New(context.Background(), Config{}, nil)
	if c.limiter == nil {
		t.Fatalf("expected even a disabled client to carry a rate limiter")
	}
}
