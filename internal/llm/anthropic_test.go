package llm

import "testing"

func TestTokenTracker(t *testing.T) {
	tr := NewTokenTracker()
	tr.Add(100, 50)
	tr.Add(30, 20)

	in, out := tr.Total()
	if in != 130 || out != 70 {
		t.Errorf("expected 130/70, got %d/%d", in, out)
	}
	if tr.Calls() != 2 {
		t.Errorf("expected 2 calls, got %d", tr.Calls())
	}

	tr.Reset()
	in, out = tr.Total()
	if in != 0 || out != 0 || tr.Calls() != 0 {
		t.Errorf("expected zeroed tracker, got %d/%d calls=%d", in, out, tr.Calls())
	}
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	if _, err := NewClient(ClientConfig{}); err == nil {
		t.Error("expected error when no API key is available")
	}
}

func TestNewClientDefaultsModel(t *testing.T) {
	c, err := NewClient(ClientConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if c.Model() == "" {
		t.Error("expected a default model")
	}
}
