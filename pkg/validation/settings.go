package validation

import (
	"errors"
	"fmt"
	"regexp"
)

var validColorTheme = regexp.MustCompile(`^[a-z0-9-]{1,32}$`)

// SettingsValidator validates user settings updates.
type SettingsValidator struct {
	isKnownModel func(string) bool
}

// NewSettingsValidator creates a validator. isKnownModel may be nil when the
// caller does not know the model list; any non-empty alias is then accepted.
func NewSettingsValidator(isKnownModel func(string) bool) *SettingsValidator {
	return &SettingsValidator{isKnownModel: isKnownModel}
}

// ValidateTheme validates the UI theme
func (v *SettingsValidator) ValidateTheme(theme string) error {
	switch theme {
	case "dark", "light":
		return nil
	}
	return fmt.Errorf("theme must be one of: dark, light; got %s", theme)
}

// ValidateFontSize validates the font size
func (v *SettingsValidator) ValidateFontSize(size string) error {
	switch size {
	case "small", "medium", "large":
		return nil
	}
	return fmt.Errorf("fontSize must be one of: small, medium, large; got %s", size)
}

// ValidateColorTheme validates the accent color theme name
func (v *SettingsValidator) ValidateColorTheme(name string) error {
	if !validColorTheme.MatchString(name) {
		return fmt.Errorf("colorTheme must be 1-32 lowercase letters, digits or hyphens; got %q", name)
	}
	return nil
}

// ValidateModel validates the model alias
func (v *SettingsValidator) ValidateModel(model string) error {
	if model == "" {
		return errors.New("model cannot be empty")
	}
	if v.isKnownModel != nil && !v.isKnownModel(model) {
		return fmt.Errorf("unknown model: %s", model)
	}
	return nil
}

// ValidateSettings validates the string settings present in an update.
// Nil fields are not being changed.
func (v *SettingsValidator) ValidateSettings(theme, colorTheme, model, fontSize *string) error {
	if theme != nil {
		if err := v.ValidateTheme(*theme); err != nil {
			return err
		}
	}
	if colorTheme != nil {
		if err := v.ValidateColorTheme(*colorTheme); err != nil {
			return err
		}
	}
	if model != nil {
		if err := v.ValidateModel(*model); err != nil {
			return err
		}
	}
	if fontSize != nil {
		if err := v.ValidateFontSize(*fontSize); err != nil {
			return err
		}
	}
	return nil
}
