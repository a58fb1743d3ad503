package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	OpenAI    OpenAIConfig
	JobClient JobClientConfig
	Chunking  ChunkingConfig
	Poll      PollConfig
	Resume    ResumeConfig
	Paths     PathsConfig
	Dataset   DatasetConfig
	Log       LogConfig
	S3        S3Config
	Email     EmailConfig
	DB        DBConfig
	Server    ServerConfig
}

// OpenAIConfig holds settings for the remote batch API and the request payload.
type OpenAIConfig struct {
	APIKey           string  `mapstructure:"api_key"`
	BaseURL          string  `mapstructure:"base_url"`
	Model            string  `mapstructure:"model"`
	Temperature      float64 `mapstructure:"temperature"`
	Endpoint         string  `mapstructure:"endpoint"`
	CompletionWindow string  `mapstructure:"completion_window"`
	MaxRetries       int     `mapstructure:"max_retries"`
	TimeoutSecs      int     `mapstructure:"timeout_secs"`
}

// JobClientConfig selects the job client implementation.
type JobClientConfig struct {
	Provider string `mapstructure:"provider"`
}

// ChunkingConfig holds the token budget used by the chunk planner.
type ChunkingConfig struct {
	MaxTokensPerChunk int `mapstructure:"max_tokens_per_chunk"`
	BytesPerToken     int `mapstructure:"bytes_per_token"`
	// MaxDocumentTokens truncates longer document texts. 0 disables truncation.
	MaxDocumentTokens int `mapstructure:"max_document_tokens"`
}

// PollConfig holds status polling settings.
type PollConfig struct {
	IntervalSecs       int `mapstructure:"interval_secs"`
	TimeoutSecs        int `mapstructure:"timeout_secs"`
	MaxTransportErrors int `mapstructure:"max_transport_errors"`
}

// Interval returns the polling interval as a duration.
func (p *PollConfig) Interval() time.Duration {
	return time.Duration(p.IntervalSecs) * time.Second
}

// Timeout returns the overall polling budget as a duration.
func (p *PollConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSecs) * time.Second
}

// ResumeConfig holds resubmission policy.
type ResumeConfig struct {
	AutoResubmit bool `mapstructure:"auto_resubmit"`
	MaxAttempts  int  `mapstructure:"max_attempts"`
	Wait         bool `mapstructure:"wait"`
}

// PathsConfig holds the local file layout of a run.
type PathsConfig struct {
	WorkDir      string `mapstructure:"work_dir"`
	ChunkDir     string `mapstructure:"chunk_dir"`
	ResultsDir   string `mapstructure:"results_dir"`
	LedgerFile   string `mapstructure:"ledger_file"`
	ManifestFile string `mapstructure:"manifest_file"`
	MergedCSV    string `mapstructure:"merged_csv"`
	MergedXLSX   string `mapstructure:"merged_xlsx"`
	ReportFile   string `mapstructure:"report_file"`
}

// DatasetConfig filters the input documents by date (YYYY-MM-DD, inclusive).
type DatasetConfig struct {
	StartDate string `mapstructure:"start_date"`
	EndDate   string `mapstructure:"end_date"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// S3Config holds AWS S3 settings for the artifact mirror. An empty bucket disables it.
type S3Config struct {
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

// EmailConfig holds run notification settings.
type EmailConfig struct {
	Provider    string   `mapstructure:"provider"`
	Region      string   `mapstructure:"region"`
	FromAddress string   `mapstructure:"from_address"`
	FromName    string   `mapstructure:"from_name"`
	Recipients  []string `mapstructure:"recipients"`
}

// DBConfig holds PostgreSQL settings for the optional results sink.
type DBConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxOpen  int    `mapstructure:"max_open"`
	MaxIdle  int    `mapstructure:"max_idle"`
}

// DSN returns the PostgreSQL connection string.
func (d *DBConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// ServerConfig holds status API server settings.
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Validate checks settings that have no usable default.
func (c *Config) Validate() error {
	if c.JobClient.Provider == "openai" && c.OpenAI.APIKey == "" {
		return errors.New("openai.api_key is required when job_client.provider is openai")
	}
	if c.Chunking.MaxTokensPerChunk <= 0 {
		return fmt.Errorf("chunking.max_tokens_per_chunk must be positive, got %d", c.Chunking.MaxTokensPerChunk)
	}
	if c.Chunking.BytesPerToken <= 0 {
		return fmt.Errorf("chunking.bytes_per_token must be positive, got %d", c.Chunking.BytesPerToken)
	}
	if c.Resume.MaxAttempts <= 0 {
		return fmt.Errorf("resume.max_attempts must be positive, got %d", c.Resume.MaxAttempts)
	}
	return nil
}

// Load reads configuration from an optional .env file and environment
// variables with the CBSENT_ prefix.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("CBSENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// OpenAI defaults
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("openai.model", "gpt-4o-2024-08-06")
	v.SetDefault("openai.temperature", 0.3)
	v.SetDefault("openai.endpoint", "/v1/chat/completions")
	v.SetDefault("openai.completion_window", "24h")
	v.SetDefault("openai.max_retries", 0)
	v.SetDefault("openai.timeout_secs", 120)

	v.SetDefault("job_client.provider", "openai")

	// Chunking defaults, kept under the remote enqueued-token limit
	v.SetDefault("chunking.max_tokens_per_chunk", 80000)
	v.SetDefault("chunking.bytes_per_token", 4)
	v.SetDefault("chunking.max_document_tokens", 8000)

	// Poll defaults
	v.SetDefault("poll.interval_secs", 60)
	v.SetDefault("poll.timeout_secs", 86400)
	v.SetDefault("poll.max_transport_errors", 5)

	// Resume defaults
	v.SetDefault("resume.auto_resubmit", true)
	v.SetDefault("resume.max_attempts", 3)
	v.SetDefault("resume.wait", false)

	// Path defaults; empty entries are derived from work_dir
	v.SetDefault("paths.work_dir", "data")
	v.SetDefault("paths.chunk_dir", "")
	v.SetDefault("paths.results_dir", "")
	v.SetDefault("paths.ledger_file", "")
	v.SetDefault("paths.manifest_file", "")
	v.SetDefault("paths.merged_csv", "")
	v.SetDefault("paths.merged_xlsx", "")
	v.SetDefault("paths.report_file", "")

	v.SetDefault("dataset.start_date", "")
	v.SetDefault("dataset.end_date", "")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	// S3 defaults (mirror disabled)
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.prefix", "cbsent")

	// Email defaults
	v.SetDefault("email.provider", "noop")
	v.SetDefault("email.region", "us-east-1")
	v.SetDefault("email.from_address", "noreply@example.com")
	v.SetDefault("email.from_name", "cbsent")
	v.SetDefault("email.recipients", "")

	// DB defaults (results sink disabled)
	v.SetDefault("db.enabled", false)
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "cbsent")
	v.SetDefault("db.password", "cbsent_secret")
	v.SetDefault("db.name", "cbsent_db")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_open", 10)
	v.SetDefault("db.max_idle", 5)

	// Server defaults
	v.SetDefault("server.port", ":8090")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")

	// Bind environment variables explicitly for nested keys
	envBindings := map[string]string{
		"openai.api_key":                "CBSENT_OPENAI_API_KEY",
		"openai.base_url":               "CBSENT_OPENAI_BASE_URL",
		"openai.model":                  "CBSENT_OPENAI_MODEL",
		"openai.temperature":            "CBSENT_OPENAI_TEMPERATURE",
		"openai.endpoint":               "CBSENT_OPENAI_ENDPOINT",
		"openai.completion_window":      "CBSENT_OPENAI_COMPLETION_WINDOW",
		"openai.max_retries":            "CBSENT_OPENAI_MAX_RETRIES",
		"openai.timeout_secs":           "CBSENT_OPENAI_TIMEOUT_SECS",
		"job_client.provider":           "CBSENT_JOB_CLIENT_PROVIDER",
		"chunking.max_tokens_per_chunk": "CBSENT_CHUNKING_MAX_TOKENS_PER_CHUNK",
		"chunking.bytes_per_token":      "CBSENT_CHUNKING_BYTES_PER_TOKEN",
		"chunking.max_document_tokens":  "CBSENT_CHUNKING_MAX_DOCUMENT_TOKENS",
		"poll.interval_secs":            "CBSENT_POLL_INTERVAL_SECS",
		"poll.timeout_secs":             "CBSENT_POLL_TIMEOUT_SECS",
		"poll.max_transport_errors":     "CBSENT_POLL_MAX_TRANSPORT_ERRORS",
		"resume.auto_resubmit":          "CBSENT_RESUME_AUTO_RESUBMIT",
		"resume.max_attempts":           "CBSENT_RESUME_MAX_ATTEMPTS",
		"resume.wait":                   "CBSENT_RESUME_WAIT",
		"paths.work_dir":                "CBSENT_PATHS_WORK_DIR",
		"paths.chunk_dir":               "CBSENT_PATHS_CHUNK_DIR",
		"paths.results_dir":             "CBSENT_PATHS_RESULTS_DIR",
		"paths.ledger_file":             "CBSENT_PATHS_LEDGER_FILE",
		"paths.manifest_file":           "CBSENT_PATHS_MANIFEST_FILE",
		"paths.merged_csv":              "CBSENT_PATHS_MERGED_CSV",
		"paths.merged_xlsx":             "CBSENT_PATHS_MERGED_XLSX",
		"paths.report_file":             "CBSENT_PATHS_REPORT_FILE",
		"dataset.start_date":            "CBSENT_DATASET_START_DATE",
		"dataset.end_date":              "CBSENT_DATASET_END_DATE",
		"log.level":                     "CBSENT_LOG_LEVEL",
		"log.format":                    "CBSENT_LOG_FORMAT",
		"s3.region":                     "CBSENT_S3_REGION",
		"s3.bucket":                     "CBSENT_S3_BUCKET",
		"s3.endpoint":                   "CBSENT_S3_ENDPOINT",
		"s3.access_key":                 "CBSENT_S3_ACCESS_KEY",
		"s3.secret_key":                 "CBSENT_S3_SECRET_KEY",
		"s3.prefix":                     "CBSENT_S3_PREFIX",
		"email.provider":                "CBSENT_EMAIL_PROVIDER",
		"email.region":                  "CBSENT_EMAIL_REGION",
		"email.from_address":            "CBSENT_EMAIL_FROM_ADDRESS",
		"email.from_name":               "CBSENT_EMAIL_FROM_NAME",
		"email.recipients":              "CBSENT_EMAIL_RECIPIENTS",
		"db.enabled":                    "CBSENT_DB_ENABLED",
		"db.host":                       "CBSENT_DB_HOST",
		"db.port":                       "CBSENT_DB_PORT",
		"db.user":                       "CBSENT_DB_USER",
		"db.password":                   "CBSENT_DB_PASSWORD",
		"db.name":                       "CBSENT_DB_NAME",
		"db.sslmode":                    "CBSENT_DB_SSLMODE",
		"db.max_open":                   "CBSENT_DB_MAX_OPEN",
		"db.max_idle":                   "CBSENT_DB_MAX_IDLE",
		"server.port":                   "CBSENT_SERVER_PORT",
		"server.read_timeout":           "CBSENT_SERVER_READ_TIMEOUT",
		"server.write_timeout":          "CBSENT_SERVER_WRITE_TIMEOUT",
	}
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}

	cfg := &Config{}
	cfg.OpenAI = OpenAIConfig{
		APIKey:           v.GetString("openai.api_key"),
		BaseURL:          v.GetString("openai.base_url"),
		Model:            v.GetString("openai.model"),
		Temperature:      v.GetFloat64("openai.temperature"),
		Endpoint:         v.GetString("openai.endpoint"),
		CompletionWindow: v.GetString("openai.completion_window"),
		MaxRetries:       v.GetInt("openai.max_retries"),
		TimeoutSecs:      v.GetInt("openai.timeout_secs"),
	}
	cfg.JobClient = JobClientConfig{
		Provider: v.GetString("job_client.provider"),
	}
	cfg.Chunking = ChunkingConfig{
		MaxTokensPerChunk: v.GetInt("chunking.max_tokens_per_chunk"),
		BytesPerToken:     v.GetInt("chunking.bytes_per_token"),
		MaxDocumentTokens: v.GetInt("chunking.max_document_tokens"),
	}
	cfg.Poll = PollConfig{
		IntervalSecs:       v.GetInt("poll.interval_secs"),
		TimeoutSecs:        v.GetInt("poll.timeout_secs"),
		MaxTransportErrors: v.GetInt("poll.max_transport_errors"),
	}
	cfg.Resume = ResumeConfig{
		AutoResubmit: v.GetBool("resume.auto_resubmit"),
		MaxAttempts:  v.GetInt("resume.max_attempts"),
		Wait:         v.GetBool("resume.wait"),
	}
	cfg.Paths = ResolvePaths(PathsConfig{
		WorkDir:      v.GetString("paths.work_dir"),
		ChunkDir:     v.GetString("paths.chunk_dir"),
		ResultsDir:   v.GetString("paths.results_dir"),
		LedgerFile:   v.GetString("paths.ledger_file"),
		ManifestFile: v.GetString("paths.manifest_file"),
		MergedCSV:    v.GetString("paths.merged_csv"),
		MergedXLSX:   v.GetString("paths.merged_xlsx"),
		ReportFile:   v.GetString("paths.report_file"),
	})
	cfg.Dataset = DatasetConfig{
		StartDate: v.GetString("dataset.start_date"),
		EndDate:   v.GetString("dataset.end_date"),
	}
	cfg.Log = LogConfig{
		Level:  v.GetString("log.level"),
		Format: v.GetString("log.format"),
	}
	cfg.S3 = S3Config{
		Region:    v.GetString("s3.region"),
		Bucket:    v.GetString("s3.bucket"),
		Endpoint:  v.GetString("s3.endpoint"),
		AccessKey: v.GetString("s3.access_key"),
		SecretKey: v.GetString("s3.secret_key"),
		Prefix:    v.GetString("s3.prefix"),
	}
	cfg.Email = EmailConfig{
		Provider:    v.GetString("email.provider"),
		Region:      v.GetString("email.region"),
		FromAddress: v.GetString("email.from_address"),
		FromName:    v.GetString("email.from_name"),
		Recipients:  splitList(v.GetString("email.recipients")),
	}
	cfg.DB = DBConfig{
		Enabled:  v.GetBool("db.enabled"),
		Host:     v.GetString("db.host"),
		Port:     v.GetInt("db.port"),
		User:     v.GetString("db.user"),
		Password: v.GetString("db.password"),
		Name:     v.GetString("db.name"),
		SSLMode:  v.GetString("db.sslmode"),
		MaxOpen:  v.GetInt("db.max_open"),
		MaxIdle:  v.GetInt("db.max_idle"),
	}
	cfg.Server = ServerConfig{
		Port:         v.GetString("server.port"),
		ReadTimeout:  v.GetDuration("server.read_timeout"),
		WriteTimeout: v.GetDuration("server.write_timeout"),
	}

	return cfg, nil
}

// ResolvePaths fills empty path entries from WorkDir.
func ResolvePaths(p PathsConfig) PathsConfig {
	if p.WorkDir == "" {
		p.WorkDir = "data"
	}
	def := func(val *string, elem ...string) {
		if *val == "" {
			*val = filepath.Join(append([]string{p.WorkDir}, elem...)...)
		}
	}
	def(&p.ChunkDir, "chunks")
	def(&p.ResultsDir, "results")
	def(&p.LedgerFile, "batch_ledger.json")
	def(&p.ManifestFile, "chunks", "documents.jsonl")
	def(&p.MergedCSV, "results", "sentiment_results.csv")
	def(&p.MergedXLSX, "results", "sentiment_results.xlsx")
	def(&p.ReportFile, "results", "validation_report.json")
	return p
}

// splitList parses a comma-separated string, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
