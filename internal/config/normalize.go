package config

import (
	"strings"

	"gm-batch-converter/internal/domain"
)

// Normalize trims paths and clamps numeric options into their valid ranges.
func Normalize(settings domain.Settings) domain.Settings {
	defaults := DefaultSettings()

	settings.InputDir = strings.TrimSpace(settings.InputDir)
	settings.OutputDir = strings.TrimSpace(settings.OutputDir)
	settings.ColorProfile = strings.TrimSpace(settings.ColorProfile)
	settings.Format = strings.ToLower(strings.TrimSpace(settings.Format))
	if settings.Format == "" {
		settings.Format = defaults.Format
	}

	switch {
	case settings.Quality <= 0:
		settings.Quality = defaults.Quality
	case settings.Quality > 100:
		settings.Quality = 100
	}

	switch settings.Overwrite {
	case domain.OverwriteAsk, domain.OverwriteAlways, domain.OverwriteSkip:
	default:
		settings.Overwrite = domain.OverwriteAsk
	}

	if settings.Workers < 0 {
		settings.Workers = 0
	}

	settings.Rotate = ((settings.Rotate%360)+360)%360
	settings.Rotate -= settings.Rotate % 90

	if settings.ResizeWidth < 0 {
		settings.ResizeWidth = 0
	}
	if settings.ResizeHeight < 0 {
		settings.ResizeHeight = 0
	}
	return settings
}
