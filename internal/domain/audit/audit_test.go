package audit

import (
	"testing"

	"github.com/nexocrm/agentgate/internal/domain/action"
)

func TestRedactMasksSensitiveKeys(t *testing.T) {
	in := action.Input{
		"subject": "Renewal call",
		"api_key": "sk-12345",
		"ssn":     "000-11-2222",
	}

	out := Redact(in)

	if out["subject"] != "Renewal call" {
		t.Errorf("non-sensitive value changed: %v", out["subject"])
	}
	if out["api_key"] != "[REDACTED]" || out["ssn"] != "[REDACTED]" {
		t.Errorf("sensitive values not masked: %v", out)
	}
	if in["api_key"] != "sk-12345" {
		t.Error("Redact must not modify the original input")
	}
}

func TestRedactNil(t *testing.T) {
	if Redact(nil) != nil {
		t.Error("nil input should stay nil")
	}
}
