package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables that override file settings.
const (
	EnvOutputDir   = "NFLREFRESH_OUTPUT_DIR"
	EnvBaseURL     = "NFLREFRESH_BASE_URL"
	EnvTimeout     = "NFLREFRESH_TIMEOUT"
	EnvS3Bucket    = "NFLREFRESH_S3_BUCKET"
	EnvS3Prefix    = "NFLREFRESH_S3_PREFIX"
	EnvKafkaBroker = "NFLREFRESH_KAFKA_BROKER"
	EnvKafkaTopic  = "NFLREFRESH_KAFKA_TOPIC"
)

// DefaultKafkaTopic is used when only a broker is given through the environment.
const DefaultKafkaTopic = "nflrefresh.files"

// LoadDotEnv loads variables from the given .env files into the process
// environment. Missing files are ignored; variables already set win.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides s with NFLREFRESH_* variables from the process environment.
func ApplyEnv(s *Settings) error {
	return applyEnv(s, os.LookupEnv)
}

func applyEnv(s *Settings, lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get(EnvOutputDir); ok {
		s.OutputDir = v
	}
	if v, ok := get(EnvBaseURL); ok {
		s.BaseURL = v
	}
	if v, ok := get(EnvTimeout); ok {
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvTimeout, err)
		}
		s.Timeout = d
	}
	if v, ok := get(EnvS3Bucket); ok {
		if s.S3 == nil {
			s.S3 = &S3Settings{}
		}
		s.S3.Bucket = v
	}
	if v, ok := get(EnvS3Prefix); ok && s.S3 != nil {
		s.S3.Prefix = v
	}
	if v, ok := get(EnvKafkaBroker); ok {
		if s.Kafka == nil {
			s.Kafka = &KafkaSettings{Topic: DefaultKafkaTopic}
		}
		s.Kafka.Broker = v
	}
	if v, ok := get(EnvKafkaTopic); ok && s.Kafka != nil {
		s.Kafka.Topic = v
	}
	return nil
}
