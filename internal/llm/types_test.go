package llm

import (
	"encoding/json"
	"testing"
)

func TestProviderConstants(t *testing.T) {
	if ProviderOllama != "ollama" {
		t.Errorf("ProviderOllama = %s, want ollama", ProviderOllama)
	}
	if ProviderAnthropic != "anthropic" {
		t.Errorf("ProviderAnthropic = %s, want anthropic", ProviderAnthropic)
	}
	if ProviderOpenAI != "openai" {
		t.Errorf("ProviderOpenAI = %s, want openai", ProviderOpenAI)
	}
}

func TestTier_Values(t *testing.T) {
	if !(Tier1 < Tier2 && Tier2 < Tier3) {
		t.Error("Tiers should be ordered: Tier1 < Tier2 < Tier3")
	}
}

func TestMessage_JSON(t *testing.T) {
	data, err := json.Marshal(Message{Role: "user", Content: "test"})
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	if string(data) != `{"role":"user","content":"test"}` {
		t.Errorf("Marshal = %s", data)
	}
}
