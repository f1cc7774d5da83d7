package config

import (
	"fmt"
	"os"
	"time"

	"quiz-grading-engine/internal/domain"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL  string `yaml:"ttl"`
		File string `yaml:"file"`
	} `yaml:"quiz"`
	Auth struct {
		// Secret signs participant JWTs (HS256). Empty trusts the X-Participant-ID header.
		Secret string `yaml:"secret"`
	} `yaml:"auth"`
	Sweeper struct {
		Interval string `yaml:"interval"`
	} `yaml:"sweeper"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

type quizFile struct {
	Versions []domain.QuizVersion `yaml:"versions"`
}

// LoadQuizVersions reads quiz versions from a YAML file and validates each one.
func LoadQuizVersions(path string) ([]domain.QuizVersion, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file quizFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for _, v := range file.Versions {
		if err := domain.ValidateQuizVersion(v); err != nil {
			return nil, err
		}
	}
	return file.Versions, nil
}
