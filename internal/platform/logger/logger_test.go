package logger

import "testing"

func TestSanitizeKVsRedactsSecretsAndHashesUsers(t *testing.T) {
	out := sanitizeKVs([]interface{}{
		"openai_api_key", "sk-abc",
		"uploaded_by", "crawler",
		"document_id", "doc-1",
		"header", "Bearer abc.def",
	})
	if got := out[1]; got != "[REDACTED]" {
		t.Fatalf("api key: want=[REDACTED] got=%v", got)
	}
	hashed, _ := out[3].(string)
	if len(hashed) != len("hash:")+12 {
		t.Fatalf("uploaded_by: want hashed value got=%q", hashed)
	}
	if got := out[5]; got != "doc-1" {
		t.Fatalf("document_id: want=doc-1 got=%v", got)
	}
	if got := out[7]; got != "[REDACTED]" {
		t.Fatalf("bearer: want=[REDACTED] got=%v", got)
	}
}

func TestSanitizeKVsOddLength(t *testing.T) {
	out := sanitizeKVs([]interface{}{"a", 1, "dangling"})
	if len(out) != 3 || out[2] != "dangling" {
		t.Fatalf("odd kv: got=%v", out)
	}
}
