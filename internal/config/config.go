// Package config reads runtime settings from the environment and an optional .env file.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	pipelineerrors "github.com/maxkimambo/sparkflow/internal/errors"
)

const (
	DefaultRegion           = "us-west-2"
	DefaultMaxParallelTasks = 10
	DefaultTaskTimeout      = time.Hour
)

type Config struct {
	// WarehouseDSN is a postgres:// URL for the Redshift cluster
	WarehouseDSN string
	// Definition is a pipeline file path; empty selects the built-in pipeline
	Definition       string
	MaxParallelTasks int
	TaskTimeout      time.Duration
	AWS              AWSConfig
	S3               S3Config
}

type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	CredentialsFile string
}

type S3Config struct {
	Endpoint string
	UseSSL   bool
	// Preflight checks that a stage location has objects before clearing the table
	Preflight bool
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// LoadFile reads the given env files instead of ./.env. Values already in
// the environment win.
func LoadFile(paths ...string) (*Config, error) {
	if err := godotenv.Load(paths...); err != nil {
		return nil, pipelineerrors.NewConfigError("env file", err.Error())
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() (*Config, error) {
	maxParallel, err := intEnv("MAX_PARALLEL_TASKS", DefaultMaxParallelTasks)
	if err != nil {
		return nil, err
	}
	if maxParallel < 1 {
		return nil, pipelineerrors.NewConfigError("MAX_PARALLEL_TASKS", "must be at least 1")
	}

	timeout, err := durationEnv("TASK_TIMEOUT", DefaultTaskTimeout)
	if err != nil {
		return nil, err
	}

	useSSL, err := boolEnv("S3_USE_SSL", true)
	if err != nil {
		return nil, err
	}
	preflight, err := boolEnv("S3_PREFLIGHT", false)
	if err != nil {
		return nil, err
	}

	return &Config{
		WarehouseDSN:     firstNonEmpty(env("WAREHOUSE_DSN"), env("DATABASE_URL")),
		Definition:       env("PIPELINE_DEFINITION"),
		MaxParallelTasks: maxParallel,
		TaskTimeout:      timeout,
		AWS: AWSConfig{
			Region:          firstNonEmpty(env("AWS_REGION"), env("AWS_DEFAULT_REGION"), DefaultRegion),
			AccessKeyID:     env("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: env("AWS_SECRET_ACCESS_KEY"),
			SessionToken:    env("AWS_SESSION_TOKEN"),
			CredentialsFile: env("AWS_SHARED_CREDENTIALS_FILE"),
		},
		S3: S3Config{
			Endpoint:  env("S3_ENDPOINT"),
			UseSSL:    useSSL,
			Preflight: preflight,
		},
	}, nil
}

// HasStaticKeys reports whether both halves of an access key pair are set
func (c *Config) HasStaticKeys() bool {
	return c.AWS.AccessKeyID != "" && c.AWS.SecretAccessKey != ""
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func intEnv(key string, def int) (int, error) {
	raw := env(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pipelineerrors.NewConfigError(key, "must be an integer")
	}
	return v, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := env(key)
	if raw == "" {
		return def, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v < 0 {
		return 0, pipelineerrors.NewConfigError(key, "must be a non-negative duration such as 30m")
	}
	return v, nil
}

func boolEnv(key string, def bool) (bool, error) {
	raw := env(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, pipelineerrors.NewConfigError(key, "must be true or false")
	}
	return v, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
