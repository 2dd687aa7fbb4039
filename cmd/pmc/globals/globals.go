package globals

import (
	"context"
	"pmcautomation/internal/components/chrono"
	"pmcautomation/internal/components/restyutil"
	"pmcautomation/internal/components/telemetry"
	"pmcautomation/internal/report"
	"pmcautomation/pkg/sqliteutil"
)

type contextKey struct{}

// Config is read from pmc.json5 (and pmc.local.json5), then overridden by
// PMC_ prefixed environment variables.
type Config struct {
	// CredentialFile maps reference keys to webservice credentials.
	CredentialFile string `json:"credential_file" env:"CREDENTIAL_FILE"`
	// Keychain is consulted after the credential file when it is configured.
	Keychain sqliteutil.Config `json:"keychain" envPrefix:"KEYCHAIN_"`
	// TemplateDir holds UX input templates named <data source id>.json.
	TemplateDir string `json:"template_dir" env:"TEMPLATE_DIR"`
	// BatchRoot is the directory batch folders are created in.
	BatchRoot string `json:"batch_root" env:"BATCH_ROOT"`
	Timezone  string `json:"timezone" env:"TIMEZONE"`
	// RateLimit caps requests per second for the Connect api.
	RateLimit float64           `json:"rate_limit" env:"RATE_LIMIT"`
	Smtp      report.SmtpConfig `json:"smtp" envPrefix:"SMTP_"`
	LogFormat string            `json:"log_format" env:"LOG_FORMAT"`
	PerfStats bool              `json:"perf_stats" env:"PERF_STATS"`
}

func DefaultConfig() Config {
	return Config{
		CredentialFile: "resources/pcn_config.json",
		TemplateDir:    "resources/templates",
		LogFormat:      string(telemetry.FileFormatDaily),
	}
}

// Value is what every command shares, it is built once before a command runs.
type Value struct {
	Config Config
	RunID  string
	Test   bool
	Debug  bool
	Clock  chrono.API
	Tel    telemetry.API
	// BatchFolder is empty unless the run was asked to keep a batch folder.
	BatchFolder string
	// Output receives http dumps, it is nil without a batch folder.
	Output restyutil.MessageOutput
}

func Set(ctx context.Context, value *Value) context.Context {
	return context.WithValue(ctx, contextKey{}, value)
}

func Get(ctx context.Context) *Value {
	return ctx.Value(contextKey{}).(*Value)
}
