package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/jcelliott/lumber"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type jsonData struct {
	Development     bool     `yaml:"development" env:"DEVELOPMENT"`
	AuthToken       string   `yaml:"authToken" env:"AUTH_TOKEN"`
	CommandPrefixes []string `yaml:"commandPrefixes" env:"COMMAND_PREFIXES" envSeparator:","`
	CaseInsensitive bool     `yaml:"caseInsensitive" env:"CASE_INSENSITIVE"`
	IgnoreExtra     *bool    `yaml:"ignoreExtra" env:"IGNORE_EXTRA"`
	Database        string   `yaml:"database" env:"DATABASE"`
	OwnerIds        []string `yaml:"ownerIds" env:"OWNER_IDS" envSeparator:","`
	ReplyRate       float64  `yaml:"replyRate" env:"REPLY_RATE"`
	ReplyBurst      int      `yaml:"replyBurst" env:"REPLY_BURST"`
	LogLevel        string   `yaml:"logLevel" env:"LOG_LEVEL"`
}

// EnvPrefix namespaces every environment override, e.g. VKBOT_AUTH_TOKEN.
const EnvPrefix = "VKBOT_"

type SettingsStorage struct {
	data jsonData
}

var Settings = SettingsStorage{jsonData{}}

// LoadSettings reads the settings file (JSON, or YAML for .yaml/.yml), then
// applies a .env file and VKBOT_* environment overrides on top.
func LoadSettings(settingsfile string) error {
	data, err := readSettingsFile(settingsfile)
	if err != nil {
		return err
	}
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		LogWarn("Failed to load .env file: ", err)
	}
	if err := applyEnv(&data, nil); err != nil {
		return err
	}
	Settings.data = data

	if !SetLogLevelName(data.LogLevel) {
		if !Settings.IsDevelopment() {
			SetLogLevel(lumber.INFO)
		}
	}
	LogDebug("Loaded config successfully from ", settingsfile)
	return nil
}

func readSettingsFile(settingsfile string) (jsonData, error) {
	var data jsonData
	file, err := os.Open(settingsfile)
	if err != nil {
		return data, fmt.Errorf("open config file: %w", err)
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(settingsfile)) {
	case ".yaml", ".yml":
		err = yaml.NewDecoder(file).Decode(&data)
	default:
		err = json.NewDecoder(file).Decode(&data)
	}
	if err != nil {
		return data, fmt.Errorf("parse configuration: %w", err)
	}
	return data, nil
}

// applyEnv overlays environment values. A nil environment means the process
// environment.
func applyEnv(data *jsonData, environment map[string]string) error {
	opts := env.Options{Prefix: EnvPrefix, Environment: environment}
	if err := env.ParseWithOptions(data, opts); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Get the bot auth tooken
func (s *SettingsStorage) AuthToken() string {
	return s.data.AuthToken
}

// Prefixes used for bot commands, most specific first. Defaults to "!".
func (s *SettingsStorage) CommandPrefixes() []string {
	if len(s.data.CommandPrefixes) == 0 {
		return []string{"!"}
	}
	return s.data.CommandPrefixes
}

// Get whether or not we're running in Development mode.
func (s *SettingsStorage) IsDevelopment() bool {
	return s.data.Development
}

func (s *SettingsStorage) CaseInsensitive() bool {
	return s.data.CaseInsensitive
}

// Whether commands tolerate trailing arguments they don't declare. Defaults to true.
func (s *SettingsStorage) IgnoreExtra() bool {
	if s.data.IgnoreExtra == nil {
		return true
	}
	return *s.data.IgnoreExtra
}

// Database file for custom commands. Empty disables the custom command cog.
func (s *SettingsStorage) Database() string {
	return s.data.Database
}

func (s *SettingsStorage) OwnerIds() []string {
	return s.data.OwnerIds
}

// Outbound messages per second and burst. Defaults to 1/s with a burst of 5.
func (s *SettingsStorage) ReplyRate() (float64, int) {
	rate, burst := s.data.ReplyRate, s.data.ReplyBurst
	if rate <= 0 {
		rate = 1
	}
	if burst <= 0 {
		burst = 5
	}
	return rate, burst
}
