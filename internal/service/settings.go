package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/raphaelgruber/sprintpilot/internal/llm"
	"github.com/raphaelgruber/sprintpilot/internal/models"
	"github.com/raphaelgruber/sprintpilot/internal/store"
)

// SettingsService reads and updates per-workspace assistant settings.
type SettingsService struct {
	store        store.Settings
	providers    *llm.Set
	defaultModel string
	defaultLimit int64
}

// NewSettingsService creates a settings service. Workspaces without stored
// settings use the default provider of the set, defaultModel and defaultLimit.
func NewSettingsService(s store.Settings, providers *llm.Set, defaultModel string, defaultLimit int64) *SettingsService {
	return &SettingsService{store: s, providers: providers, defaultModel: defaultModel, defaultLimit: defaultLimit}
}

// Defaults returns the settings a workspace starts with.
func (s *SettingsService) Defaults(workspaceID string) models.Settings {
	return models.Settings{
		WorkspaceID:       workspaceID,
		Enabled:           len(s.providers.Names()) > 0,
		Provider:          s.providers.Default(),
		Model:             s.defaultModel,
		MonthlyTokenLimit: s.defaultLimit,
	}
}

// Get returns stored settings, or the defaults when none exist.
func (s *SettingsService) Get(ctx context.Context, workspaceID string) (*models.Settings, error) {
	if workspaceID == "" {
		return nil, fmt.Errorf("%w: workspace id is required", ErrInvalidInput)
	}
	st, err := s.store.GetSettings(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}
	if st == nil {
		d := s.Defaults(workspaceID)
		return &d, nil
	}
	if st.Provider == "" {
		st.Provider = s.providers.Default()
	}
	if st.MonthlyTokenLimit <= 0 {
		st.MonthlyTokenLimit = s.defaultLimit
	}
	return st, nil
}

// Update validates and stores a settings change.
func (s *SettingsService) Update(ctx context.Context, workspaceID string, update models.SettingsUpdate) (*models.Settings, error) {
	if workspaceID == "" {
		return nil, fmt.Errorf("%w: workspace id is required", ErrInvalidInput)
	}
	if update.Provider != nil {
		name := strings.TrimSpace(*update.Provider)
		if name != "" && !s.providers.Has(name) {
			return nil, fmt.Errorf("%w: provider %q is not configured (available: %s)",
				ErrInvalidInput, name, strings.Join(s.providers.Names(), ", "))
		}
		update.Provider = &name
	}
	if update.MonthlyTokenLimit != nil && *update.MonthlyTokenLimit < 0 {
		return nil, fmt.Errorf("%w: monthly token limit must not be negative", ErrInvalidInput)
	}

	st, err := s.store.UpsertSettings(ctx, workspaceID, update, s.Defaults(workspaceID))
	if err != nil {
		return nil, fmt.Errorf("update settings: %w", err)
	}
	return st, nil
}

// resolveProvider returns the provider a turn should use, or ErrConfiguration.
func (s *SettingsService) resolveProvider(ctx context.Context, workspaceID string) (llm.Provider, *models.Settings, error) {
	st, err := s.Get(ctx, workspaceID)
	if err != nil {
		return nil, nil, err
	}
	if !st.Enabled {
		return nil, nil, fmt.Errorf("%w: assistant is disabled for this workspace", ErrConfiguration)
	}
	if st.Provider == "" {
		return nil, nil, fmt.Errorf("%w: no ai provider set", ErrConfiguration)
	}
	p, err := s.providers.Pick(st.Provider)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return p, st, nil
}
