package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// PayloadType names the kind of structured data attached to an assistant message.
type PayloadType string

// Known payload types. Anything else is treated as absent.
const (
	PayloadTaskSuggestions         PayloadType = "task_suggestions"
	PayloadScheduleSuggestion      PayloadType = "schedule_suggestion"
	PayloadCapacityOverview        PayloadType = "capacity_overview"
	PayloadProjectWizardSuggestion PayloadType = "project_wizard_suggestion"
	PayloadProjectWizardProgress   PayloadType = "project_wizard_progress"
	PayloadProjectWizardReview     PayloadType = "project_wizard_review"
	PayloadProjectCreated          PayloadType = "project_created"
)

// PayloadTypes lists every known payload type in a stable order.
var PayloadTypes = []PayloadType{
	PayloadTaskSuggestions,
	PayloadScheduleSuggestion,
	PayloadCapacityOverview,
	PayloadProjectWizardSuggestion,
	PayloadProjectWizardProgress,
	PayloadProjectWizardReview,
	PayloadProjectCreated,
}

// Known reports whether t is one of the recognized payload types.
func (t PayloadType) Known() bool {
	for _, k := range PayloadTypes {
		if k == t {
			return true
		}
	}
	return false
}

// ErrUnknownPayloadType is returned when decoding a payload with an unrecognized type.
var ErrUnknownPayloadType = errors.New("unknown payload type")

// Payload is a typed JSON object attached to an assistant message.
// Data always holds the full object, including its "type" field.
type Payload struct {
	Type PayloadType
	Data json.RawMessage
}

// NewPayload builds a payload from a raw JSON object, forcing its "type" field to t.
func NewPayload(t PayloadType, raw []byte) (*Payload, error) {
	if !t.Known() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPayloadType, t)
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("decode payload object: %w", err)
	}
	if obj == nil {
		return nil, fmt.Errorf("decode payload object: not an object")
	}
	obj["type"] = string(t)
	data, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return &Payload{Type: t, Data: data}, nil
}

// MarshalJSON emits the underlying object.
func (p Payload) MarshalJSON() ([]byte, error) {
	if len(p.Data) == 0 {
		return json.Marshal(map[string]string{"type": string(p.Type)})
	}
	return p.Data, nil
}

// UnmarshalJSON accepts any object with a known "type" field.
func (p *Payload) UnmarshalJSON(data []byte) error {
	var head struct {
		Type PayloadType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	if !head.Type.Known() {
		return fmt.Errorf("%w: %q", ErrUnknownPayloadType, head.Type)
	}
	p.Type = head.Type
	p.Data = append(p.Data[:0], data...)
	return nil
}

// Decode unmarshals the payload object into v.
func (p *Payload) Decode(v any) error {
	if p == nil {
		return errors.New("nil payload")
	}
	return json.Unmarshal(p.Data, v)
}

// WizardEpic is an epic drafted during the project wizard.
type WizardEpic struct {
	Name          string  `json:"name"`
	Description   string  `json:"description,omitempty"`
	EstimateWeeks float64 `json:"estimate_weeks,omitempty"`
}

// WizardDependency links two drafted epics by name.
type WizardDependency struct {
	Epic      string `json:"epic"`
	DependsOn string `json:"depends_on"`
	Reason    string `json:"reason,omitempty"`
}

// WizardProgress is the project_wizard_progress payload shape.
type WizardProgress struct {
	Type         PayloadType        `json:"type"`
	Step         string             `json:"step"`
	ProjectName  string             `json:"project_name,omitempty"`
	Description  string             `json:"description,omitempty"`
	Epics        []WizardEpic       `json:"epics,omitempty"`
	Dependencies []WizardDependency `json:"dependencies,omitempty"`
}

// WizardSuggestion is the project_wizard_suggestion payload shape.
type WizardSuggestion struct {
	Type        PayloadType `json:"type"`
	ProjectName string      `json:"project_name"`
	Description string      `json:"description,omitempty"`
	Reason      string      `json:"reason,omitempty"`
}
