package config

import "testing"

func TestKeyringManager_SaveAndGetAPIKey(t *testing.T) {
	km := NewKeyringManager()
	if !km.IsAvailable() {
		t.Skip("keychain not available, skipping test")
	}
	defer km.DeleteAPIKey()

	testKey := "sk-test123456789"
	if err := km.SaveAPIKey(testKey); err != nil {
		t.Fatalf("failed to save api key: %v", err)
	}
	got, err := km.GetAPIKey()
	if err != nil {
		t.Fatalf("failed to get api key: %v", err)
	}
	if got != testKey {
		t.Errorf("expected key %s, got %s", testKey, got)
	}
}

func TestKeyringManager_SaveEmptyKeyFails(t *testing.T) {
	km := NewKeyringManager()
	if err := km.SaveAPIKey(""); err == nil {
		t.Fatalf("expected error saving empty api key")
	}
}
