// Package wizard models the guided project-creation flow. Its state is
// never stored on its own: each turn rebuilds it from the last assistant
// message's payload.
package wizard

import (
	"fmt"
	"strings"

	"github.com/raphaelgruber/sprintpilot/internal/models"
)

// Step is one stage of the wizard.
type Step string

// Wizard steps in order.
const (
	StepName         Step = "name"
	StepEpics        Step = "epics"
	StepDependencies Step = "dependencies"
	StepReview       Step = "review"
)

// Steps lists the steps in order.
var Steps = []Step{StepName, StepEpics, StepDependencies, StepReview}

// Index returns the position of s in Steps, or -1.
func (s Step) Index() int {
	for i, st := range Steps {
		if st == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is a known step.
func (s Step) Valid() bool { return s.Index() >= 0 }

// Next returns the step after s. Review has no successor.
func Next(s Step) (Step, bool) {
	i := s.Index()
	if i < 0 || i+1 >= len(Steps) {
		return "", false
	}
	return Steps[i+1], true
}

// Progress is the draft project carried between turns.
type Progress struct {
	Step         Step
	ProjectName  string
	Description  string
	Epics        []models.WizardEpic
	Dependencies []models.WizardDependency
}

// Payload converts progress to its wire shape.
func (p Progress) Payload() models.WizardProgress {
	return models.WizardProgress{
		Type:         models.PayloadProjectWizardProgress,
		Step:         string(p.Step),
		ProjectName:  p.ProjectName,
		Description:  p.Description,
		Epics:        p.Epics,
		Dependencies: p.Dependencies,
	}
}

// State is either inactive or an active wizard with its progress.
// The zero value is inactive.
type State struct {
	active   bool
	progress Progress
}

// None is the inactive state.
func None() State { return State{} }

// Active starts or resumes the wizard at p.
func Active(p Progress) State {
	if !p.Step.Valid() {
		p.Step = StepName
	}
	return State{active: true, progress: p}
}

// Progress returns the draft and true when the wizard is active.
func (s State) Progress() (Progress, bool) {
	return s.progress, s.active
}

// IsActive reports whether the wizard is running.
func (s State) IsActive() bool { return s.active }

// FromHistory rebuilds the wizard state from a conversation.
// Only the last assistant message counts:
//   - a progress (or review) payload resumes the wizard at its step;
//   - with start set, a suggestion payload seeds a new wizard from it;
//   - with start set and nothing to resume, a fresh wizard begins;
//   - otherwise the wizard is inactive.
func FromHistory(messages []models.Message, start bool) State {
	last := lastAssistant(messages)
	if last != nil && last.Payload != nil {
		switch last.Payload.Type {
		case models.PayloadProjectWizardProgress, models.PayloadProjectWizardReview:
			var wp models.WizardProgress
			if err := last.Payload.Decode(&wp); err == nil {
				step := Step(wp.Step)
				if last.Payload.Type == models.PayloadProjectWizardReview {
					step = StepReview
				}
				return Active(Progress{
					Step:         step,
					ProjectName:  wp.ProjectName,
					Description:  wp.Description,
					Epics:        wp.Epics,
					Dependencies: wp.Dependencies,
				})
			}
		case models.PayloadProjectWizardSuggestion:
			if !start {
				break
			}
			var sug models.WizardSuggestion
			if err := last.Payload.Decode(&sug); err == nil {
				return Active(Progress{Step: StepName, ProjectName: sug.ProjectName, Description: sug.Description})
			}
		}
	}
	if start {
		return Active(Progress{Step: StepName})
	}
	return None()
}

func lastAssistant(messages []models.Message) *models.Message {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == models.RoleAssistant {
			return &messages[i]
		}
	}
	return nil
}

// Instructions renders the wizard-mode prompt block for the current step.
// It returns "" when the wizard is inactive.
func Instructions(s State) string {
	p, ok := s.Progress()
	if !ok {
		return ""
	}

	var b strings.Builder
	b.WriteString("## Project wizard\n")
	fmt.Fprintf(&b, "You are guiding the user through creating a project. Step %d of %d: %s.\n",
		p.Step.Index()+1, len(Steps), p.Step)
	b.WriteString(draftSummary(p))
	b.WriteString("\n")

	switch p.Step {
	case StepName:
		b.WriteString("Propose a concise project name and a one-sentence description based on what the user said. " +
			"If the user already named the project, confirm it and move on to epics.\n")
	case StepEpics:
		b.WriteString("Propose 3 to 7 epics that cover the project. Give each a short name, a one-line description " +
			"and an estimate in weeks. Ask the user to adjust before moving on to dependencies.\n")
	case StepDependencies:
		b.WriteString("Propose dependencies between the drafted epics and give a one-line reason for each. " +
			"Only reference epics by the names in the draft. Avoid cycles.\n")
	case StepReview:
		b.WriteString("Summarize the full draft. " +
			"Do NOT call create_project_with_epics until the user explicitly confirms (for example \"yes, create it\").\n")
		b.WriteString("End your reply with exactly one fenced block: a ```json:project_wizard_review``` block with " +
			"step, project_name, description, epics and dependencies while the user is still reviewing, " +
			"or, in the reply after create_project_with_epics succeeded, only a ```json:project_created``` block " +
			"with the new project id. Never emit both in one reply.\n")
		return b.String()
	}

	b.WriteString("End your reply with exactly one fenced block, an updated ```json:project_wizard_progress``` block " +
		"containing step, project_name, description, epics and dependencies so the draft survives to the next turn. " +
		"Do not add any other block.\n")
	if next, ok := Next(p.Step); ok {
		fmt.Fprintf(&b, "When the user is happy with this step, set step to %q.\n", next)
	}
	return b.String()
}

func draftSummary(p Progress) string {
	var b strings.Builder
	b.WriteString("Current draft:\n")
	name := p.ProjectName
	if name == "" {
		name = "(not chosen yet)"
	}
	fmt.Fprintf(&b, "- Project: %s\n", name)
	if p.Description != "" {
		fmt.Fprintf(&b, "- Description: %s\n", p.Description)
	}
	if len(p.Epics) > 0 {
		b.WriteString("- Epics:\n")
		for _, e := range p.Epics {
			fmt.Fprintf(&b, "  - %s", e.Name)
			if e.EstimateWeeks > 0 {
				fmt.Fprintf(&b, " (%gw)", e.EstimateWeeks)
			}
			b.WriteString("\n")
		}
	}
	if len(p.Dependencies) > 0 {
		b.WriteString("- Dependencies:\n")
		for _, d := range p.Dependencies {
			fmt.Fprintf(&b, "  - %s depends on %s\n", d.Epic, d.DependsOn)
		}
	}
	return b.String()
}
