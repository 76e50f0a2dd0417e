package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the survey tooling configuration. Values come from the YAML
// config file and can be overridden per-key through the environment
// (a .env file is honored when present).
type Config struct {
	Project struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"project"`

	Paths struct {
		DBPath       string `yaml:"db_path"`
		RawImagesDir string `yaml:"raw_images_dir"`
		RoiRawDir    string `yaml:"roi_raw_dir"`
	} `yaml:"paths"`

	Logging struct {
		Level  string `yaml:"level"`
		LogDir string `yaml:"log_dir"`
	} `yaml:"logging"`

	// ListLimit caps the list-* CLI outputs.
	ListLimit int `yaml:"list_limit"`
}

// Load reads the YAML config at path, applies environment overrides and
// fills defaults. A missing config file is not an error; defaults plus the
// environment apply.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg.Paths.DBPath = getEnv("TREESURVEY_DB_PATH", cfg.Paths.DBPath)
	cfg.Paths.RawImagesDir = getEnv("TREESURVEY_RAW_IMAGES_DIR", cfg.Paths.RawImagesDir)
	cfg.Paths.RoiRawDir = getEnv("TREESURVEY_ROI_RAW_DIR", cfg.Paths.RoiRawDir)
	cfg.Logging.Level = getEnv("TREESURVEY_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.LogDir = getEnv("TREESURVEY_LOG_DIR", cfg.Logging.LogDir)
	cfg.ListLimit = getEnvAsInt("TREESURVEY_LIST_LIMIT", cfg.ListLimit)

	return cfg, nil
}

func defaults() *Config {
	cfg := &Config{}
	cfg.Project.Name = "treesurvey"
	cfg.Paths.DBPath = filepath.Join("data", "survey.db")
	cfg.Paths.RawImagesDir = filepath.Join("data", "raw_images")
	cfg.Paths.RoiRawDir = filepath.Join("data", "roi_raw")
	cfg.Logging.Level = "info"
	cfg.Logging.LogDir = "logs"
	cfg.ListLimit = 20
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
