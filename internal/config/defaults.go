package config

import (
	"os"
	"path/filepath"

	"gm-batch-converter/internal/domain"
)

// AppDirName is the per-user directory holding settings, logs and tools.
const AppDirName = ".gm-batch-converter"

// DefaultSettings returns baseline local configuration for first launch.
func DefaultSettings() domain.Settings {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	return domain.Settings{
		InputDir:   filepath.Join(homeDir, "Pictures"),
		OutputDir:  filepath.Join(homeDir, "Pictures", "Converted"),
		Format:     "png",
		Quality:    90,
		Overwrite:  domain.OverwriteAsk,
		KeepAspect: true,
	}
}

// AppDir returns the application directory below homeDir.
func AppDir(homeDir string) string {
	return filepath.Join(homeDir, AppDirName)
}
