package config

import (
	"fmt"
	"path/filepath"
)

const stateDir = ".shiftwatch"

type Config struct {
	DataDir      string
	DBPath       string
	SettingsPath string
	LogPath      string
	ReportDir    string
}

func New(dataDir string) (Config, error) {
	if dataDir == "" {
		return Config{}, fmt.Errorf("data dir is required")
	}
	return Config{
		DataDir:      dataDir,
		DBPath:       filepath.Join(dataDir, stateDir, "shiftwatch.db"),
		SettingsPath: filepath.Join(dataDir, stateDir, "settings.yaml"),
		LogPath:      filepath.Join(dataDir, stateDir, "shiftwatch.log"),
		ReportDir:    filepath.Join(dataDir, "arrivals"),
	}, nil
}
