package config

import (
	"fmt"
	"time"

	"github.com/gridiron-data/nflrefresh/internal/loader"
	"github.com/gridiron-data/nflrefresh/internal/refresh"
	"github.com/gridiron-data/nflrefresh/pkg/nflstats"
)

// Defaults applied by DefaultSettings and ConvertToSettings.
const (
	DefaultOutputDir = "data/raw"
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Settings is the typed configuration of the refresh tool.
type Settings struct {
	OutputDir string
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	DryRun    bool
	Headers   map[string]string

	Datasets map[nflstats.Mode]DatasetSettings

	S3    *S3Settings
	Kafka *KafkaSettings

	Schedules []ScheduleSettings
	Logging   LoggingSettings
}

// DatasetSettings locates one mode's release asset and its required columns.
type DatasetSettings struct {
	Release         string
	Asset           string
	RequiredColumns []string
}

// Source returns the loader source for the dataset.
func (d DatasetSettings) Source() loader.Source {
	return loader.Source{Release: d.Release, Asset: d.Asset}
}

// S3Settings configures the S3 mirror publisher.
type S3Settings struct {
	Bucket   string
	Prefix   string
	Region   string
	Endpoint string
}

// KafkaSettings configures the Kafka notification publisher.
type KafkaSettings struct {
	Broker          string
	Topic           string
	DeliveryTimeout time.Duration
}

// ScheduleSettings is one scheduled refresh.
type ScheduleSettings struct {
	ID      string
	Cron    string
	Request nflstats.Request
	Timeout time.Duration
}

// LoggingSettings configures the logger.
type LoggingSettings struct {
	Level  string
	Format string
	File   string
}

// DefaultSettings returns the settings used when no file is given.
func DefaultSettings() *Settings {
	return &Settings{
		OutputDir: DefaultOutputDir,
		BaseURL:   loader.DefaultBaseURL,
		UserAgent: loader.DefaultUserAgent,
		Timeout:   loader.DefaultTimeout,
		Datasets: map[nflstats.Mode]DatasetSettings{
			nflstats.ModeWeekly: {
				Release:         loader.WeeklyTeamSource.Release,
				Asset:           loader.WeeklyTeamSource.Asset,
				RequiredColumns: append([]string(nil), refresh.DefaultRequiredColumns...),
			},
			nflstats.ModePlayerStats: {
				Release:         loader.PlayerStatsSource.Release,
				Asset:           loader.PlayerStatsSource.Asset,
				RequiredColumns: append([]string(nil), refresh.DefaultRequiredColumns...),
			},
		},
		Logging: LoggingSettings{Level: DefaultLogLevel, Format: DefaultLogFormat},
	}
}

// RequiredColumns returns the required columns per mode.
func (s *Settings) RequiredColumns() map[nflstats.Mode][]string {
	out := make(map[nflstats.Mode][]string, len(s.Datasets))
	for mode, ds := range s.Datasets {
		out[mode] = ds.RequiredColumns
	}
	return out
}

// ConvertToSettings converts parsed configuration data to Settings, filling
// defaults for everything the file leaves out.
// The input data should have been validated against the schema before calling this function.
//
// The configuration is expected to have this structure:
//
//	{
//	  "schemaVersion": "1.0",
//	  "refresh":   {"outputDir": "...", "timeout": "60s", ...},
//	  "datasets":  {"weekly": {...}, "player_stats": {...}},
//	  "publish":   {"s3": {...}, "kafka": {...}},
//	  "schedules": [{"id": "...", "cron": "...", "mode": "...", "seasons": [...]}],
//	  "logging":   {"level": "info", "format": "json"}
//	}
func ConvertToSettings(data map[string]interface{}) (*Settings, error) {
	settings := DefaultSettings()
	if data == nil {
		return settings, nil
	}

	if section, ok := data[SectionRefresh].(map[string]interface{}); ok {
		if err := convertRefresh(section, settings); err != nil {
			return nil, fmt.Errorf("invalid 'refresh' section: %w", err)
		}
	}

	if datasets, ok := data["datasets"].(map[string]interface{}); ok {
		for name, raw := range datasets {
			mode, err := nflstats.ParseMode(name)
			if err != nil {
				return nil, fmt.Errorf("invalid 'datasets' section: %w", err)
			}
			dsData, ok := raw.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("invalid dataset %q: expected object, got %T", name, raw)
			}
			ds := settings.Datasets[mode]
			if release, ok := dsData["release"].(string); ok {
				ds.Release = release
			}
			if asset, ok := dsData["asset"].(string); ok {
				ds.Asset = asset
			}
			if cols, ok := dsData["requiredColumns"]; ok {
				ds.RequiredColumns, err = stringSlice(cols)
				if err != nil {
					return nil, fmt.Errorf("invalid dataset %q requiredColumns: %w", name, err)
				}
			}
			settings.Datasets[mode] = ds
		}
	}

	if publish, ok := data["publish"].(map[string]interface{}); ok {
		if err := convertPublish(publish, settings); err != nil {
			return nil, fmt.Errorf("invalid 'publish' section: %w", err)
		}
	}

	if schedules, ok := data["schedules"].([]interface{}); ok {
		for i, raw := range schedules {
			sched, err := convertSchedule(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid schedule at index %d: %w", i, err)
			}
			settings.Schedules = append(settings.Schedules, sched)
		}
	}

	if logging, ok := data["logging"].(map[string]interface{}); ok {
		if level, ok := logging["level"].(string); ok {
			settings.Logging.Level = level
		}
		if format, ok := logging["format"].(string); ok {
			settings.Logging.Format = format
		}
		if file, ok := logging["file"].(string); ok {
			settings.Logging.File = file
		}
	}

	return settings, nil
}

func convertRefresh(data map[string]interface{}, s *Settings) error {
	if dir, ok := data["outputDir"].(string); ok {
		s.OutputDir = dir
	}
	if base, ok := data["baseUrl"].(string); ok {
		s.BaseURL = base
	}
	if ua, ok := data["userAgent"].(string); ok {
		s.UserAgent = ua
	}
	if dry, ok := data["dryRun"].(bool); ok {
		s.DryRun = dry
	}
	if raw, ok := data["timeout"]; ok {
		d, err := parseDuration(raw)
		if err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		s.Timeout = d
	}
	if headers, ok := data["headers"].(map[string]interface{}); ok {
		s.Headers = make(map[string]string, len(headers))
		for k, v := range headers {
			str, ok := v.(string)
			if !ok {
				return fmt.Errorf("invalid header value for key %q: expected string, got %T", k, v)
			}
			s.Headers[k] = str
		}
	}
	return nil
}

func convertPublish(data map[string]interface{}, s *Settings) error {
	if s3Data, ok := data["s3"].(map[string]interface{}); ok {
		s3 := &S3Settings{}
		s3.Bucket, _ = s3Data["bucket"].(string)
		s3.Prefix, _ = s3Data["prefix"].(string)
		s3.Region, _ = s3Data["region"].(string)
		s3.Endpoint, _ = s3Data["endpoint"].(string)
		if s3.Bucket == "" {
			return fmt.Errorf("missing required field 's3.bucket'")
		}
		s.S3 = s3
	}
	if kafkaData, ok := data["kafka"].(map[string]interface{}); ok {
		k := &KafkaSettings{}
		k.Broker, _ = kafkaData["broker"].(string)
		k.Topic, _ = kafkaData["topic"].(string)
		if k.Broker == "" || k.Topic == "" {
			return fmt.Errorf("missing required field 'kafka.broker' or 'kafka.topic'")
		}
		if raw, ok := kafkaData["deliveryTimeout"]; ok {
			d, err := parseDuration(raw)
			if err != nil {
				return fmt.Errorf("kafka.deliveryTimeout: %w", err)
			}
			k.DeliveryTimeout = d
		}
		s.Kafka = k
	}
	return nil
}

func convertSchedule(raw interface{}) (ScheduleSettings, error) {
	data, ok := raw.(map[string]interface{})
	if !ok {
		return ScheduleSettings{}, fmt.Errorf("expected object, got %T", raw)
	}

	var sched ScheduleSettings
	if sched.ID, ok = data["id"].(string); !ok {
		return sched, fmt.Errorf("missing required field 'id'")
	}
	if sched.Cron, ok = data["cron"].(string); !ok {
		return sched, fmt.Errorf("missing required field 'cron'")
	}
	modeName, ok := data["mode"].(string)
	if !ok {
		return sched, fmt.Errorf("missing required field 'mode'")
	}
	mode, err := nflstats.ParseMode(modeName)
	if err != nil {
		return sched, err
	}
	sched.Request.Mode = mode

	if sched.Request.Seasons, err = intSlice(data["seasons"]); err != nil {
		return sched, fmt.Errorf("seasons: %w", err)
	}
	if weeks, ok := data["weeks"]; ok {
		if sched.Request.Weeks, err = intSlice(weeks); err != nil {
			return sched, fmt.Errorf("weeks: %w", err)
		}
	}
	if rawTimeout, ok := data["timeout"]; ok {
		if sched.Timeout, err = parseDuration(rawTimeout); err != nil {
			return sched, fmt.Errorf("timeout: %w", err)
		}
	}
	return sched, nil
}

// parseDuration accepts a Go duration string or a number of seconds.
func parseDuration(v interface{}) (time.Duration, error) {
	switch t := v.(type) {
	case string:
		d, err := time.ParseDuration(t)
		if err != nil {
			return 0, err
		}
		if d <= 0 {
			return 0, fmt.Errorf("duration must be positive, got %s", t)
		}
		return d, nil
	case int:
		if t <= 0 {
			return 0, fmt.Errorf("duration must be positive, got %d", t)
		}
		return time.Duration(t) * time.Second, nil
	case float64:
		if t <= 0 {
			return 0, fmt.Errorf("duration must be positive, got %v", t)
		}
		return time.Duration(t * float64(time.Second)), nil
	default:
		return 0, fmt.Errorf("expected duration string or seconds, got %T", v)
	}
}

func intSlice(v interface{}) ([]int, error) {
	items, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("expected array, got %T", v)
	}
	out := make([]int, 0, len(items))
	for i, item := range items {
		switch n := item.(type) {
		case int:
			out = append(out, n)
		case float64:
			if n != float64(int(n)) {
				return nil, fmt.Errorf("item %d: expected integer, got %v", i, n)
			}
			out = append(out, int(n))
		default:
			return nil, fmt.Errorf("item %d: expected integer, got %T", i, item)
		}
	}
	return out, nil
}

func stringSlice(v interface{}) ([]string, error) {
	items, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("expected array, got %T", v)
	}
	out := make([]string, 0, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("item %d: expected string, got %T", i, item)
		}
		out = append(out, s)
	}
	return out, nil
}
