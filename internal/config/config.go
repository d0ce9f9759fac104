// Package config loads the docdispatch settings tree.
//
// Settings come from a YAML or TOML file (chosen by extension), with ${a.b}
// placeholders expanded against the tree itself. A .env file next to the
// settings file is loaded into the process environment first, and DOCDISPATCH_*
// environment variables override file values.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Transport names accepted by dispatch.transport.
const (
	TransportAPI    = "api"
	TransportSMTP   = "smtp"
	TransportSES    = "ses"
	TransportStdout = "stdout"
)

// Default directory names for the case-folder root layout.
const (
	DefaultStagingName = "En Proceso"
	DefaultArchiveName = "Listo"
	DefaultConfigName  = "Configuracion"
	DefaultCeilingMB   = 25.0
	DefaultCCGroup     = "SANTA ELENA"
	DefaultLockFile    = ".docdispatch.lock"
)

// ErrInvalidSettings is returned by Validate for unusable settings.
var ErrInvalidSettings = errors.New("invalid settings")

// Settings is the full configuration tree for one process.
type Settings struct {
	Path     PathSettings     `yaml:"path"`
	Mail     MailSettings     `yaml:"mail"`
	Dispatch DispatchSettings `yaml:"dispatch"`
	Ledger   LedgerSettings   `yaml:"ledger"`
	Kafka    KafkaSettings    `yaml:"kafka"`
	Lock     LockSettings     `yaml:"lock"`
	Metrics  MetricsSettings  `yaml:"metrics"`
	Logging  LoggingSettings  `yaml:"logging"`
}

// PathSettings groups local and remote locations.
type PathSettings struct {
	Local LocalPaths `yaml:"local"`
	Drive DrivePaths `yaml:"drive"`
}

// LocalPaths describes the local filesystem layout.
type LocalPaths struct {
	// Main is the application home; other paths usually reference it via ${path.local.main}.
	Main string `yaml:"main"`

	// Root is the directory holding incoming case folders.
	Root string `yaml:"root"`

	// Config is the directory holding the recipient workbook.
	Config string `yaml:"config"`

	// Templates is the directory holding the HTML mail templates.
	Templates string `yaml:"templates"`

	// Logs is an optional directory for log files.
	Logs string `yaml:"logs"`

	// Directory is the recipient workbook path. Defaults to <Config>/recipients.xlsx.
	Directory string `yaml:"directory"`

	// Staging, Archive and ConfigName are reserved names under Root.
	Staging    string `yaml:"staging"`
	Archive    string `yaml:"archive"`
	ConfigName string `yaml:"config_name"`
}

// DrivePaths describes the optional Google Drive intake.
type DrivePaths struct {
	Enabled    bool   `yaml:"enabled"`
	RootPath   string `yaml:"root_path"`
	InProgress string `yaml:"in_progress"`
	Done       string `yaml:"done"`
}

// MailSettings holds transport credentials, templates and report recipients.
type MailSettings struct {
	Config   MailConfig       `yaml:"config"`
	Template TemplateSettings `yaml:"template"`
	Sender   SenderSettings   `yaml:"sender"`
}

// MailConfig holds the credentials of every transport.
type MailConfig struct {
	SMTP SMTPSettings `yaml:"smtp"`
	API  APISettings  `yaml:"api"`
	SES  SESSettings  `yaml:"ses"`
}

// SMTPSettings configures the SMTP transport.
type SMTPSettings struct {
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Server   string `yaml:"server"`
	Port     int    `yaml:"port"`
	From     string `yaml:"from"`
}

// APISettings configures the Gmail API transport and Google OAuth.
type APISettings struct {
	Scopes      []string `yaml:"scopes"`
	Credentials string   `yaml:"credentials"`
	Token       string   `yaml:"token"`
	UseKeyring  bool     `yaml:"use_keyring"`
}

// SESSettings configures the Amazon SES transport.
type SESSettings struct {
	Region string `yaml:"region"`
	From   string `yaml:"from"`
}

// TemplateSettings names the HTML template files.
type TemplateSettings struct {
	Report   string `yaml:"report"`
	Receiver string `yaml:"receiver"`
	Empty    string `yaml:"empty"`
}

// SenderSettings holds default recipients per message kind.
type SenderSettings struct {
	Report ReportSender `yaml:"report"`
}

// ReportSender lists addresses as ';' or ',' separated strings.
type ReportSender struct {
	To  string `yaml:"to"`
	CC  string `yaml:"cc"`
	CCO string `yaml:"cco"`
}

// DispatchSettings tunes the per-folder dispatch.
type DispatchSettings struct {
	Transport      string        `yaml:"transport"`
	CeilingMB      float64       `yaml:"ceiling_mb"`
	CCGroup        string        `yaml:"cc_group"`
	DriveFallback  bool          `yaml:"drive_fallback"`
	RatePerMinute  float64       `yaml:"rate_per_minute"`
	BreakerTrips   uint32        `yaml:"breaker_trips"`
	BreakerTimeout time.Duration `yaml:"breaker_timeout"`
	DryRun         bool          `yaml:"dry_run"`
}

// LedgerSettings controls the xlsx ledger and the sqlite run history.
type LedgerSettings struct {
	Dir         string `yaml:"dir"`
	FileName    string `yaml:"file_name"`
	Sheet       string `yaml:"sheet"`
	HistoryPath string `yaml:"history_path"`
}

// KafkaSettings enables streaming execution records. Empty Brokers disables it.
type KafkaSettings struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// LockSettings controls the run-level lock file. A lock whose process is gone,
// or that is older than MaxAge, is taken over.
type LockSettings struct {
	Enabled  bool          `yaml:"enabled"`
	FileName string        `yaml:"file_name"`
	MaxAge   time.Duration `yaml:"max_age"`
}

// MetricsSettings configures the optional Pushgateway push after each run.
type MetricsSettings struct {
	PushGateway string `yaml:"push_gateway"`
	Job         string `yaml:"job"`
}

// LoggingSettings configures the slog handler.
type LoggingSettings struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns settings with every default applied.
func Default() *Settings {
	s := &Settings{}
	s.applyDefaults()
	return s
}

// Load reads the settings file at path. A .env file in the same directory is
// loaded first; existing environment variables are not overwritten by it.
func Load(path string) (*Settings, error) {
	envFile := filepath.Join(filepath.Dir(path), ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var tree map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, &tree)
	default:
		err = yaml.Unmarshal(data, &tree)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	s, err := decode(ExpandPlaceholders(tree))
	if err != nil {
		return nil, err
	}

	s.applyEnvVars()
	s.resolveRelative(filepath.Dir(path))
	return s, nil
}

// decode maps a generic tree onto Settings through a yaml round trip, so both
// file formats share one set of struct tags.
func decode(tree map[string]any) (*Settings, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	if err := enc.Encode(tree); err != nil {
		return nil, fmt.Errorf("failed to normalize config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to normalize config: %w", err)
	}

	s := Default()
	if err := yaml.Unmarshal(buf.Bytes(), s); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	s.applyDefaults()
	return s, nil
}

// applyDefaults fills zero-valued fields. It is safe to call more than once.
func (s *Settings) applyDefaults() {
	if s.Path.Local.Staging == "" {
		s.Path.Local.Staging = DefaultStagingName
	}
	if s.Path.Local.Archive == "" {
		s.Path.Local.Archive = DefaultArchiveName
	}
	if s.Path.Local.ConfigName == "" {
		s.Path.Local.ConfigName = DefaultConfigName
	}
	if s.Path.Drive.InProgress == "" {
		s.Path.Drive.InProgress = DefaultStagingName
	}
	if s.Path.Drive.Done == "" {
		s.Path.Drive.Done = DefaultArchiveName
	}
	if s.Mail.Config.SMTP.Port == 0 {
		s.Mail.Config.SMTP.Port = 587
	}
	if s.Dispatch.Transport == "" {
		s.Dispatch.Transport = TransportAPI
	}
	if s.Dispatch.CeilingMB == 0 {
		s.Dispatch.CeilingMB = DefaultCeilingMB
	}
	if s.Dispatch.CCGroup == "" {
		s.Dispatch.CCGroup = DefaultCCGroup
	}
	if s.Dispatch.BreakerTrips == 0 {
		s.Dispatch.BreakerTrips = 3
	}
	if s.Dispatch.BreakerTimeout == 0 {
		s.Dispatch.BreakerTimeout = time.Minute
	}
	if s.Ledger.Sheet == "" {
		s.Ledger.Sheet = "Sheet1"
	}
	if s.Kafka.Topic == "" {
		s.Kafka.Topic = "docdispatch.records"
	}
	if s.Lock.FileName == "" {
		s.Lock.FileName = DefaultLockFile
		s.Lock.Enabled = true
	}
	if s.Lock.MaxAge == 0 {
		s.Lock.MaxAge = 6 * time.Hour
	}
	if s.Metrics.Job == "" {
		s.Metrics.Job = "docdispatch"
	}
	if s.Logging.Level == "" {
		s.Logging.Level = "info"
	}
	if s.Logging.Format == "" {
		s.Logging.Format = "text"
	}
}

// applyEnvVars overrides settings with DOCDISPATCH_* environment variables.
// Only non-empty variables override existing values.
func (s *Settings) applyEnvVars() {
	if v := os.Getenv("DOCDISPATCH_ROOT"); v != "" {
		s.Path.Local.Root = v
	}
	if v := os.Getenv("DOCDISPATCH_DIRECTORY"); v != "" {
		s.Path.Local.Directory = v
	}
	if v := os.Getenv("DOCDISPATCH_TRANSPORT"); v != "" {
		s.Dispatch.Transport = strings.ToLower(v)
	}
	if v := os.Getenv("DOCDISPATCH_CEILING_MB"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			s.Dispatch.CeilingMB = f
		}
	}
	if v := os.Getenv("DOCDISPATCH_SMTP_USER"); v != "" {
		s.Mail.Config.SMTP.User = v
	}
	if v := os.Getenv("DOCDISPATCH_SMTP_PASSWORD"); v != "" {
		s.Mail.Config.SMTP.Password = v
	}
	if v := os.Getenv("DOCDISPATCH_SMTP_SERVER"); v != "" {
		s.Mail.Config.SMTP.Server = v
	}
	if v := os.Getenv("DOCDISPATCH_SMTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			s.Mail.Config.SMTP.Port = port
		}
	}
	if v := os.Getenv("DOCDISPATCH_SES_REGION"); v != "" {
		s.Mail.Config.SES.Region = v
	}
	if v := os.Getenv("DOCDISPATCH_KAFKA_BROKERS"); v != "" {
		s.Kafka.Brokers = SplitList(v)
	}
	if v := os.Getenv("DOCDISPATCH_PUSHGATEWAY"); v != "" {
		s.Metrics.PushGateway = v
	}
	if v := os.Getenv("DOCDISPATCH_LOG_LEVEL"); v != "" {
		s.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("DOCDISPATCH_LOG_FORMAT"); v != "" {
		s.Logging.Format = strings.ToLower(v)
	}
}

// resolveRelative anchors relative paths at the settings file directory.
func (s *Settings) resolveRelative(base string) {
	for _, p := range []*string{
		&s.Path.Local.Root,
		&s.Path.Local.Config,
		&s.Path.Local.Templates,
		&s.Path.Local.Logs,
		&s.Path.Local.Directory,
		&s.Mail.Config.API.Credentials,
		&s.Mail.Config.API.Token,
		&s.Ledger.Dir,
		&s.Ledger.HistoryPath,
	} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(base, *p)
		}
	}
	if s.Path.Local.Directory == "" && s.Path.Local.Config != "" {
		s.Path.Local.Directory = filepath.Join(s.Path.Local.Config, "recipients.xlsx")
	}
	if s.Ledger.Dir == "" {
		s.Ledger.Dir = s.Path.Local.Root
	}
}

// Validate reports settings that would make a run impossible.
func (s *Settings) Validate() error {
	var errs []error
	if s.Path.Local.Root == "" {
		errs = append(errs, errors.New("path.local.root is required"))
	}
	if s.Dispatch.CeilingMB <= 0 {
		errs = append(errs, fmt.Errorf("dispatch.ceiling_mb must be positive, got %v", s.Dispatch.CeilingMB))
	}
	switch s.Dispatch.Transport {
	case TransportAPI, TransportSMTP, TransportSES, TransportStdout:
	default:
		errs = append(errs, fmt.Errorf("unknown dispatch.transport %q", s.Dispatch.Transport))
	}
	if s.Dispatch.Transport == TransportSMTP && s.Mail.Config.SMTP.Server == "" {
		errs = append(errs, errors.New("mail.config.smtp.server is required for the smtp transport"))
	}
	if s.Path.Drive.Enabled && s.Path.Drive.RootPath == "" {
		errs = append(errs, errors.New("path.drive.root_path is required when drive intake is enabled"))
	}
	reserved := map[string]bool{}
	for _, name := range s.ReservedNames() {
		if reserved[name] {
			errs = append(errs, fmt.Errorf("reserved directory name %q is used twice", name))
		}
		reserved[name] = true
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidSettings, errors.Join(errs...))
	}
	return nil
}

// ReservedNames returns the directory names under Root that are never case folders.
func (s *Settings) ReservedNames() []string {
	return []string{s.Path.Local.Staging, s.Path.Local.Archive, s.Path.Local.ConfigName}
}

// SplitList splits an address or broker list on ';' or ',' and drops empty entries.
func SplitList(v string) []string {
	fields := strings.FieldsFunc(v, func(r rune) bool { return r == ';' || r == ',' })
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
