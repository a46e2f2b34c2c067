package models

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestNewPayloadForcesType(t *testing.T) {
	p, err := NewPayload(PayloadCapacityOverview, []byte(`{"type":"something_else","members":[]}`))
	if err != nil {
		t.Fatalf("NewPayload: %v", err)
	}
	var obj map[string]any
	if err := json.Unmarshal(p.Data, &obj); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if obj["type"] != "capacity_overview" {
		t.Errorf("type = %v, want capacity_overview", obj["type"])
	}
}

func TestNewPayloadRejects(t *testing.T) {
	if _, err := NewPayload("made_up", []byte(`{}`)); !errors.Is(err, ErrUnknownPayloadType) {
		t.Errorf("expected ErrUnknownPayloadType, got %v", err)
	}
	if _, err := NewPayload(PayloadTaskSuggestions, []byte(`[1,2]`)); err == nil {
		t.Error("expected error for non-object payload")
	}
	if _, err := NewPayload(PayloadTaskSuggestions, []byte(`null`)); err == nil {
		t.Error("expected error for null payload")
	}
}

func TestPayloadInMessageJSON(t *testing.T) {
	p, err := NewPayload(PayloadProjectWizardProgress, []byte(`{"step":"epics","project_name":"Atlas"}`))
	if err != nil {
		t.Fatalf("NewPayload: %v", err)
	}
	msg := Message{ID: "m1", Role: RoleAssistant, Content: "hi", Payload: p}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var back Message
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Payload == nil || back.Payload.Type != PayloadProjectWizardProgress {
		t.Fatalf("payload lost: %+v", back.Payload)
	}

	var progress WizardProgress
	if err := back.Payload.Decode(&progress); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if progress.Step != "epics" || progress.ProjectName != "Atlas" {
		t.Errorf("progress = %+v", progress)
	}
}

func TestSettingsUpdateApply(t *testing.T) {
	s := Settings{Enabled: true, Provider: "openai", MonthlyTokenLimit: 10}
	limit := int64(500)
	off := false
	SettingsUpdate{Enabled: &off, MonthlyTokenLimit: &limit}.Apply(&s)

	if s.Enabled || s.Provider != "openai" || s.MonthlyTokenLimit != 500 {
		t.Errorf("unexpected settings after apply: %+v", s)
	}
}
