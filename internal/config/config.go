package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

const (
	ObjectStoreDriverS3    = "s3"
	ObjectStoreDriverMinio = "minio"

	SourceDriverMySQL    = "mysql"
	SourceDriverPostgres = "postgres"

	QueryEngineAthena = "athena"
	QueryEngineDuckDB = "duckdb"
)

// ErrMissing is matched by every *MissingError.
var ErrMissing = errors.New("missing required configuration")

// MissingError lists the required keys that were absent for a pipeline.
type MissingError struct {
	Pipeline string
	Keys     []string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("%s: missing required environment variables: %s", e.Pipeline, strings.Join(e.Keys, ", "))
}

func (e *MissingError) Is(target error) bool {
	return target == ErrMissing
}

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	AWS           AWSConfig
	ObjectStore   ObjectStoreConfig
	Source        SourceConfig
	Query         QueryConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Name string
}

type AWSConfig struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Region          string
}

type ObjectStoreConfig struct {
	Driver           string
	Endpoint         string
	Bucket           string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

type SourceConfig struct {
	Driver         string
	DSN            string
	Host           string
	Port           int
	User           string
	Password       string
	Database       string
	ConnectTimeout time.Duration
}

type QueryConfig struct {
	Engine         string
	Database       string
	OutputLocation string
	WorkGroup      string
	PollInterval   time.Duration
	Timeout        time.Duration
	MaxAttempts    int
	MaxResults     int
	DuckDBPath     string
}

type ObservabilityConfig struct {
	LogLevel        slog.Level
	LogJSON         bool
	MetricsTextfile string
}

// LoadFromEnv merges an optional dotenv file under the process environment
// and loads the configuration from the result.
func LoadFromEnv(serviceName string) (Config, error) {
	lookup, err := DotenvLookup(os.LookupEnv)
	if err != nil {
		return Config{}, err
	}
	return Load(serviceName, lookup)
}

// DotenvLookup returns a lookup that consults base first and falls back to the
// file named by LAKESHIFT_ENV_FILE, or ./.env when that is unset. A missing
// default file is not an error.
func DotenvLookup(base LookupFunc) (LookupFunc, error) {
	if base == nil {
		return nil, fmt.Errorf("lookup function is required")
	}
	path, explicit := base("LAKESHIFT_ENV_FILE")
	path = strings.TrimSpace(path)
	if path == "" {
		path = ".env"
		explicit = false
	}
	values, err := godotenv.Read(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return base, nil
		}
		return nil, fmt.Errorf("read env file %q: %w", path, err)
	}
	return func(key string) (string, bool) {
		if value, ok := base(key); ok {
			return value, true
		}
		value, ok := values[key]
		return value, ok
	}, nil
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("LAKESHIFT_PROFILE"); ok && strings.TrimSpace(raw) != "" {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid LAKESHIFT_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	steps := []func() error{
		func() error { return applyString(lookup, "LAKESHIFT_SERVICE_NAME", &cfg.Service.Name) },
		func() error { return applyString(lookup, "AWS_ACCESS_KEY_ID", &cfg.AWS.AccessKeyID) },
		func() error { return applyString(lookup, "AWS_SECRET_ACCESS_KEY", &cfg.AWS.SecretAccessKey) },
		func() error { return applyString(lookup, "AWS_SESSION_TOKEN", &cfg.AWS.SessionToken) },
		func() error { return applyString(lookup, "AWS_REGION", &cfg.AWS.Region) },
		func() error { return applyString(lookup, "S3_BUCKET_NAME", &cfg.ObjectStore.Bucket) },
		func() error {
			return applyChoice(lookup, "LAKESHIFT_OBJECTSTORE_DRIVER", &cfg.ObjectStore.Driver, ObjectStoreDriverS3, ObjectStoreDriverMinio)
		},
		func() error { return applyString(lookup, "LAKESHIFT_OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint) },
		func() error { return applyBool(lookup, "LAKESHIFT_OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL) },
		func() error { return applyString(lookup, "LAKESHIFT_OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix) },
		func() error {
			return applyBool(lookup, "LAKESHIFT_OBJECTSTORE_AUTO_CREATE_BUCKET", &cfg.ObjectStore.AutoCreateBucket)
		},
		func() error {
			return applyChoice(lookup, "LAKESHIFT_SOURCE_DRIVER", &cfg.Source.Driver, SourceDriverMySQL, SourceDriverPostgres)
		},
		func() error { return applyString(lookup, "LAKESHIFT_SOURCE_DSN", &cfg.Source.DSN) },
		func() error { return applyString(lookup, "MYSQL_HOST", &cfg.Source.Host) },
		func() error { return applyInt(lookup, "MYSQL_PORT", &cfg.Source.Port) },
		func() error { return applyString(lookup, "MYSQL_USER", &cfg.Source.User) },
		func() error { return applyRaw(lookup, "MYSQL_PASSWORD", &cfg.Source.Password) },
		func() error { return applyString(lookup, "MYSQL_DATABASE", &cfg.Source.Database) },
		func() error { return applyDuration(lookup, "LAKESHIFT_SOURCE_CONNECT_TIMEOUT", &cfg.Source.ConnectTimeout) },
		func() error {
			return applyChoice(lookup, "LAKESHIFT_QUERY_ENGINE", &cfg.Query.Engine, QueryEngineAthena, QueryEngineDuckDB)
		},
		func() error { return applyString(lookup, "ATHENA_DATABASE", &cfg.Query.Database) },
		func() error { return applyString(lookup, "ATHENA_OUTPUT_LOCATION", &cfg.Query.OutputLocation) },
		func() error { return applyString(lookup, "ATHENA_WORKGROUP", &cfg.Query.WorkGroup) },
		func() error { return applyDuration(lookup, "LAKESHIFT_QUERY_POLL_INTERVAL", &cfg.Query.PollInterval) },
		func() error { return applyDuration(lookup, "LAKESHIFT_QUERY_TIMEOUT", &cfg.Query.Timeout) },
		func() error { return applyInt(lookup, "LAKESHIFT_QUERY_MAX_ATTEMPTS", &cfg.Query.MaxAttempts) },
		func() error { return applyInt(lookup, "LAKESHIFT_QUERY_MAX_RESULTS", &cfg.Query.MaxResults) },
		func() error { return applyString(lookup, "LAKESHIFT_DUCKDB_PATH", &cfg.Query.DuckDBPath) },
		func() error { return applyLogLevel(lookup, "LAKESHIFT_LOG_LEVEL", &cfg.Observability.LogLevel) },
		func() error { return applyBool(lookup, "LAKESHIFT_LOG_JSON", &cfg.Observability.LogJSON) },
		func() error {
			return applyString(lookup, "LAKESHIFT_METRICS_TEXTFILE", &cfg.Observability.MetricsTextfile)
		},
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return Config{}, err
		}
	}

	if cfg.Service.Name == "" {
		return Config{}, fmt.Errorf("service name is required")
	}
	if cfg.AWS.Region == "" {
		cfg.AWS.Region = defaultRegion
	}
	if cfg.Query.PollInterval <= 0 {
		return Config{}, fmt.Errorf("invalid LAKESHIFT_QUERY_POLL_INTERVAL: must be > 0")
	}
	if cfg.Query.MaxAttempts < 0 {
		return Config{}, fmt.Errorf("invalid LAKESHIFT_QUERY_MAX_ATTEMPTS: must be >= 0")
	}
	if cfg.Query.MaxResults <= 0 || cfg.Query.MaxResults > 1000 {
		return Config{}, fmt.Errorf("invalid LAKESHIFT_QUERY_MAX_RESULTS: must be between 1 and 1000")
	}
	return cfg, nil
}

// ValidateQuery reports the keys the query pipeline needs but did not get.
// It must run before any query engine or object store client is built.
func (c Config) ValidateQuery() error {
	required := []requiredKey{
		{"AWS_ACCESS_KEY_ID", c.AWS.AccessKeyID},
		{"AWS_SECRET_ACCESS_KEY", c.AWS.SecretAccessKey},
	}
	if c.Query.Engine == QueryEngineAthena {
		required = append(required,
			requiredKey{"ATHENA_DATABASE", c.Query.Database},
			requiredKey{"ATHENA_OUTPUT_LOCATION", c.Query.OutputLocation},
		)
	}
	required = append(required, requiredKey{"S3_BUCKET_NAME", c.ObjectStore.Bucket})
	required = append(required, c.objectStoreKeys()...)
	return missing("query", required)
}

// ValidateExport reports the keys the export pipeline needs but did not get.
func (c Config) ValidateExport() error {
	var required []requiredKey
	if c.Source.Driver == SourceDriverPostgres {
		required = append(required, requiredKey{"LAKESHIFT_SOURCE_DSN", c.Source.DSN})
	} else if c.Source.DSN == "" {
		required = append(required,
			requiredKey{"MYSQL_HOST", c.Source.Host},
			requiredKey{"MYSQL_USER", c.Source.User},
			requiredKey{"MYSQL_DATABASE", c.Source.Database},
		)
	}
	required = append(required,
		requiredKey{"AWS_ACCESS_KEY_ID", c.AWS.AccessKeyID},
		requiredKey{"AWS_SECRET_ACCESS_KEY", c.AWS.SecretAccessKey},
		requiredKey{"S3_BUCKET_NAME", c.ObjectStore.Bucket},
	)
	required = append(required, c.objectStoreKeys()...)
	return missing("export", required)
}

func (c Config) objectStoreKeys() []requiredKey {
	if c.ObjectStore.Driver == ObjectStoreDriverMinio {
		return []requiredKey{{"LAKESHIFT_OBJECTSTORE_ENDPOINT", c.ObjectStore.Endpoint}}
	}
	return nil
}

type requiredKey struct {
	name  string
	value string
}

func missing(pipeline string, keys []requiredKey) error {
	var absent []string
	for _, key := range keys {
		if strings.TrimSpace(key.value) == "" {
			absent = append(absent, key.name)
		}
	}
	if len(absent) == 0 {
		return nil
	}
	return &MissingError{Pipeline: pipeline, Keys: absent}
}

const defaultRegion = "ap-northeast-1"

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "lakeshift"},
		AWS: AWSConfig{
			Region: defaultRegion,
		},
		ObjectStore: ObjectStoreConfig{
			Driver:           ObjectStoreDriverS3,
			UseSSL:           true,
			AutoCreateBucket: false,
		},
		Source: SourceConfig{
			Driver:         SourceDriverMySQL,
			Port:           3306,
			ConnectTimeout: 10 * time.Second,
		},
		Query: QueryConfig{
			Engine:       QueryEngineAthena,
			PollInterval: time.Second,
			Timeout:      30 * time.Minute,
			MaxAttempts:  0,
			MaxResults:   1000,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  false,
		},
	}

	switch profile {
	case ProfileDev:
		cfg.ObjectStore.UseSSL = false
	case ProfileTest:
		cfg.Observability.LogLevel = slog.LevelWarn
		cfg.Observability.LogJSON = true
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Observability.LogJSON = true
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

// applyRaw keeps surrounding whitespace; passwords may legitimately carry it.
func applyRaw(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = raw
	return nil
}

func applyChoice(lookup LookupFunc, key string, dst *string, allowed ...string) error {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	value := strings.ToLower(strings.TrimSpace(raw))
	for _, candidate := range allowed {
		if value == candidate {
			*dst = value
			return nil
		}
	}
	return fmt.Errorf("invalid %s: %q (want one of %s)", key, raw, strings.Join(allowed, ", "))
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
