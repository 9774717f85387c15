package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Input    InputConfig    `yaml:"input" mapstructure:"input"`
	Assets   AssetsConfig   `yaml:"assets" mapstructure:"assets"`
	Workbook WorkbookConfig `yaml:"workbook" mapstructure:"workbook"`
	Journal  JournalConfig  `yaml:"journal" mapstructure:"journal"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// InputConfig locates the claim-extract archives.
type InputConfig struct {
	ZipDir  string `yaml:"zip_dir" mapstructure:"zip_dir"`
	WorkDir string `yaml:"work_dir" mapstructure:"work_dir"`
}

// AssetsConfig locates the fixed-assets extract and its homologation table.
type AssetsConfig struct {
	Dir        string `yaml:"dir" mapstructure:"dir"`
	LookupPath string `yaml:"lookup_path" mapstructure:"lookup_path"`
	Sheet      string `yaml:"sheet" mapstructure:"sheet"`
}

// WorkbookConfig names the backing workbook and its ledger sheets.
type WorkbookConfig struct {
	Path          string `yaml:"path" mapstructure:"path"`
	FactsSheet    string `yaml:"facts_sheet" mapstructure:"facts_sheet"`
	SubjectsSheet string `yaml:"subjects_sheet" mapstructure:"subjects_sheet"`
	ControlSheet  string `yaml:"control_sheet" mapstructure:"control_sheet"`
	MinRow        int    `yaml:"min_row" mapstructure:"min_row"`
	FillColumns   int    `yaml:"fill_columns" mapstructure:"fill_columns"`
}

// JournalConfig configures the local run journal.
type JournalConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RIPS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("input.zip_dir", "zip")
	v.SetDefault("input.work_dir", "_work")
	v.SetDefault("assets.dir", "assets")
	v.SetDefault("assets.lookup_path", "assets/mappings.json")
	v.SetDefault("assets.sheet", "DETALLADO")
	v.SetDefault("workbook.path", "rips-ledger.xlsx")
	v.SetDefault("workbook.facts_sheet", "ESTRUCTURA")
	v.SetDefault("workbook.subjects_sheet", "US")
	v.SetDefault("workbook.control_sheet", "__RIPS_CONTROL__")
	v.SetDefault("workbook.min_row", 3)
	v.SetDefault("workbook.fill_columns", 40)
	v.SetDefault("journal.path", "rips-journal.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
