package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"sigs.k8s.io/yaml"
)

var ErrUnknownFormat = errors.New("unknown config format")

type Config struct {
	Debug       bool   `toml:"debug" json:"debug" env:"DEBUG"`
	LogToFile   bool   `toml:"log_to_file" json:"log_to_file" env:"LOG_TO_FILE"`
	DataDir     string `toml:"data_dir" json:"data_dir" env:"DATA_DIR"`
	CommandsDir string `toml:"commands_dir" json:"commands_dir" env:"COMMANDS_DIR"`

	Admin    AdminConfig    `toml:"admin" json:"admin"`
	Triggers TriggersConfig `toml:"triggers" json:"triggers"`
	Bridge   BridgeConfig   `toml:"bridge" json:"bridge"`
	Messages MessagesConfig `toml:"messages" json:"messages"`

	// decoded separately so every session starts from DefaultSession
	Sessions map[string]SessionConfig `toml:"-" json:"-"`
}

type AdminConfig struct {
	Permission string `toml:"permission" json:"permission" env:"ADMIN_PERMISSION"`
}

type TriggersConfig struct {
	AFK      AFKTrigger      `toml:"afk" json:"afk"`
	Fallback FallbackTrigger `toml:"fallback" json:"fallback"`
}

type AFKTrigger struct {
	Enabled          bool   `toml:"enabled" json:"enabled"`
	Session          string `toml:"session" json:"session"`
	IdleTime         int    `toml:"idle_time" json:"idle_time"`
	CheckInterval    int    `toml:"check_interval" json:"check_interval"`
	ExemptPermission string `toml:"exempt_permission" json:"exempt_permission"`
	Message          string `toml:"message" json:"message"`
}

type FallbackTrigger struct {
	Enabled      bool     `toml:"enabled" json:"enabled"`
	Session      string   `toml:"session" json:"session"`
	KickPatterns []string `toml:"kick_patterns" json:"kick_patterns"`
	Message      string   `toml:"message" json:"message"`
}

type BridgeConfig struct {
	Enabled          bool              `toml:"enabled" json:"enabled"`
	RegisterAliases  bool              `toml:"register_aliases" json:"register_aliases"`
	OverrideExisting bool              `toml:"override_existing" json:"override_existing"`
	Host             string            `toml:"host" json:"host" env:"BRIDGE_HOST"`
	StartPort        int               `toml:"start_port" json:"start_port"`
	Aliases          map[string]string `toml:"aliases" json:"aliases"`
}

type MessagesConfig struct {
	CommandsDisabled       string `toml:"commands_disabled" json:"commands_disabled"`
	CommandUnavailable     string `toml:"command_unavailable" json:"command_unavailable"`
	CommandRequiresBackend string `toml:"command_requires_backend" json:"command_requires_backend"`
	CommandFailed          string `toml:"command_failed" json:"command_failed"`
}

type SessionConfig struct {
	Enabled       bool                `toml:"enabled" json:"enabled"`
	Dimension     string              `toml:"dimension" json:"dimension"`
	GameMode      string              `toml:"gamemode" json:"gamemode"`
	WorldTime     int64               `toml:"world_time" json:"world_time"`
	Spawn         SpawnConfig         `toml:"spawn" json:"spawn"`
	Settings      SettingsConfig      `toml:"settings" json:"settings"`
	WorldFile     WorldFileConfig     `toml:"world_file" json:"world_file"`
	Commands      []string            `toml:"commands" json:"commands"`
	FakeServer    string              `toml:"fake_server" json:"fake_server"`
	AutoReconnect AutoReconnectConfig `toml:"auto_reconnect" json:"auto_reconnect"`
	Display       DisplayConfig       `toml:"display" json:"display"`
}

type SpawnConfig struct {
	X     float64 `toml:"x" json:"x"`
	Y     float64 `toml:"y" json:"y"`
	Z     float64 `toml:"z" json:"z"`
	Yaw   float32 `toml:"yaw" json:"yaw"`
	Pitch float32 `toml:"pitch" json:"pitch"`
}

type SettingsConfig struct {
	// milliseconds
	ReadTimeout        int64 `toml:"read_timeout" json:"read_timeout"`
	ShouldRejoin       bool  `toml:"should_rejoin" json:"should_rejoin"`
	ShouldRespawn      bool  `toml:"should_respawn" json:"should_respawn"`
	ReducedDebugInfo   bool  `toml:"reduced_debug_info" json:"reduced_debug_info"`
	ViewDistance       int   `toml:"view_distance" json:"view_distance"`
	SimulationDistance int   `toml:"simulation_distance" json:"simulation_distance"`

	// anti-fall, anti-fall-native, confine or none
	Movement              string `toml:"movement" json:"movement"`
	DisableFallingDelayMs int64  `toml:"disable_falling_delay_ms" json:"disable_falling_delay_ms"`
}

type WorldFileConfig struct {
	Enabled    bool     `toml:"enabled" json:"enabled"`
	Type       string   `toml:"type" json:"type"`
	Path       string   `toml:"path" json:"path"`
	Offset     BlockPos `toml:"offset" json:"offset"`
	LightLevel int      `toml:"light_level" json:"light_level"`
}

type BlockPos struct {
	X int `toml:"x" json:"x"`
	Y int `toml:"y" json:"y"`
	Z int `toml:"z" json:"z"`
}

type AutoReconnectConfig struct {
	Enabled bool   `toml:"enabled" json:"enabled"`
	Server  string `toml:"server" json:"server"`
	// seconds
	Interval       int    `toml:"interval" json:"interval"`
	Message        string `toml:"message" json:"message"`
	SuccessMessage string `toml:"success_message" json:"success_message"`
}

type DisplayConfig struct {
	OnJoin    OnJoinConfig    `toml:"on_join" json:"on_join"`
	BossBar   BossBarConfig   `toml:"bossbar" json:"bossbar"`
	ActionBar ActionBarConfig `toml:"actionbar" json:"actionbar"`
}

type OnJoinConfig struct {
	Chat      string          `toml:"chat" json:"chat"`
	Title     TitleConfig     `toml:"title" json:"title"`
	ActionBar ActionBarConfig `toml:"actionbar" json:"actionbar"`
}

// TitleConfig times are in ticks of 50ms.
type TitleConfig struct {
	Enabled  bool   `toml:"enabled" json:"enabled"`
	Title    string `toml:"title" json:"title"`
	Subtitle string `toml:"subtitle" json:"subtitle"`
	FadeIn   int    `toml:"fade_in" json:"fade_in"`
	Stay     int    `toml:"stay" json:"stay"`
	FadeOut  int    `toml:"fade_out" json:"fade_out"`
}

type BossBarConfig struct {
	Enabled  bool    `toml:"enabled" json:"enabled"`
	Title    string  `toml:"title" json:"title"`
	Color    string  `toml:"color" json:"color"`
	Style    string  `toml:"style" json:"style"`
	Progress float32 `toml:"progress" json:"progress"`
}

// ActionBarConfig doubles as the auto-reconnect countdown template, where
// {countdown} is replaced by the remaining seconds. Interval is in ticks.
type ActionBarConfig struct {
	Enabled  bool   `toml:"enabled" json:"enabled"`
	Message  string `toml:"message" json:"message"`
	Interval int    `toml:"interval" json:"interval"`
}

// LoadConfig reads a TOML or YAML file (chosen by extension), fills in
// defaults and applies LIMBOGATE_* environment overrides.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return ParseTOML(data)
	case ".yml", ".yaml", ".json":
		return ParseYAML(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, filepath.Ext(path))
	}
}

func ParseTOML(data []byte) (*Config, error) {
	cfg := baseConfig()

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	var doc struct {
		Sessions map[string]toml.Primitive `toml:"sessions"`
	}
	md, err := toml.Decode(string(data), &doc)
	if err != nil {
		return nil, fmt.Errorf("failed to parse sessions: %w", err)
	}

	if doc.Sessions != nil {
		cfg.Sessions = make(map[string]SessionConfig, len(doc.Sessions))
		for name, prim := range doc.Sessions {
			sess := DefaultSession()
			if err := md.PrimitiveDecode(prim, &sess); err != nil {
				return nil, fmt.Errorf("failed to parse session %s: %w", name, err)
			}
			cfg.Sessions[name] = sess
		}
	}

	return finish(cfg)
}

func ParseYAML(data []byte) (*Config, error) {
	raw, err := yaml.YAMLToJSON(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg := baseConfig()
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	var doc struct {
		Sessions map[string]json.RawMessage `json:"sessions"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse sessions: %w", err)
	}

	if doc.Sessions != nil {
		cfg.Sessions = make(map[string]SessionConfig, len(doc.Sessions))
		for name, msg := range doc.Sessions {
			sess := DefaultSession()
			if err := json.Unmarshal(msg, &sess); err != nil {
				return nil, fmt.Errorf("failed to parse session %s: %w", name, err)
			}
			cfg.Sessions[name] = sess
		}
	}

	return finish(cfg)
}

// baseConfig is DefaultConfig without the collections a file replaces
// wholesale.
func baseConfig() *Config {
	cfg := DefaultConfig()
	cfg.Sessions = nil
	cfg.Bridge.Aliases = nil
	cfg.Triggers.Fallback.KickPatterns = nil
	return cfg
}

func finish(cfg *Config) (*Config, error) {
	def := DefaultConfig()

	if cfg.Sessions == nil {
		cfg.Sessions = def.Sessions
	}
	if cfg.Bridge.Aliases == nil {
		cfg.Bridge.Aliases = def.Bridge.Aliases
	}
	if cfg.Triggers.Fallback.KickPatterns == nil {
		cfg.Triggers.Fallback.KickPatterns = def.Triggers.Fallback.KickPatterns
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: "LIMBOGATE_"}); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Admin.Permission == "" {
		c.Admin.Permission = DefaultAdminPermission
	}

	if c.Bridge.Host == "" {
		c.Bridge.Host = "127.0.0.1"
	}

	if c.Triggers.AFK.IdleTime == 0 {
		c.Triggers.AFK.IdleTime = 300
	}

	if c.Triggers.AFK.CheckInterval == 0 {
		c.Triggers.AFK.CheckInterval = 30
	}

	m := &c.Messages
	def := DefaultMessages()
	if m.CommandsDisabled == "" {
		m.CommandsDisabled = def.CommandsDisabled
	}
	if m.CommandUnavailable == "" {
		m.CommandUnavailable = def.CommandUnavailable
	}
	if m.CommandRequiresBackend == "" {
		m.CommandRequiresBackend = def.CommandRequiresBackend
	}
	if m.CommandFailed == "" {
		m.CommandFailed = def.CommandFailed
	}
}

// SessionNames returns the configured session names in sorted order.
func (c *Config) SessionNames() []string {
	names := make([]string, 0, len(c.Sessions))
	for name := range c.Sessions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AliasNames returns the configured bridge aliases in sorted order.
func (c *Config) AliasNames() []string {
	names := make([]string, 0, len(c.Bridge.Aliases))
	for alias := range c.Bridge.Aliases {
		names = append(names, alias)
	}
	sort.Strings(names)
	return names
}

func (c *Config) Validate() error {
	if len(c.Sessions) == 0 {
		return fmt.Errorf("at least one session must be defined")
	}

	for name := range c.Sessions {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("session names cannot be blank")
		}
	}

	if c.Bridge.StartPort < 0 || c.Bridge.StartPort > 65535 {
		return fmt.Errorf("invalid bridge start_port: %d", c.Bridge.StartPort)
	}

	if c.Bridge.StartPort+len(c.Bridge.Aliases) > 65536 {
		return fmt.Errorf("bridge start_port %d leaves no room for %d aliases", c.Bridge.StartPort, len(c.Bridge.Aliases))
	}

	return nil
}

// Warnings lists soft defects that are corrected or tolerated at runtime.
func (c *Config) Warnings() []string {
	var warnings []string

	enabled := func(name string) bool {
		s, ok := c.Sessions[name]
		return ok && s.Enabled
	}

	if c.Triggers.AFK.Enabled && !enabled(c.Triggers.AFK.Session) {
		warnings = append(warnings, fmt.Sprintf("afk trigger targets unknown or disabled session %q", c.Triggers.AFK.Session))
	}

	if c.Triggers.Fallback.Enabled && !enabled(c.Triggers.Fallback.Session) {
		warnings = append(warnings, fmt.Sprintf("fallback trigger targets unknown or disabled session %q", c.Triggers.Fallback.Session))
	}

	for _, pattern := range c.Triggers.Fallback.KickPatterns {
		if _, err := regexp.Compile(pattern); err != nil {
			warnings = append(warnings, fmt.Sprintf("invalid kick pattern %q: %v", pattern, err))
		}
	}

	if c.Bridge.Enabled {
		for _, alias := range c.AliasNames() {
			target := c.Bridge.Aliases[alias]
			if strings.TrimSpace(alias) == "" {
				warnings = append(warnings, "blank bridge alias is ignored")
				continue
			}
			if !enabled(target) {
				warnings = append(warnings, fmt.Sprintf("alias %q targets unknown or disabled session %q", alias, target))
			}
		}
	}

	for _, name := range c.SessionNames() {
		s := c.Sessions[name]
		if s.Settings.ReadTimeout <= 0 {
			warnings = append(warnings, fmt.Sprintf("session %q has read_timeout=%d, 30000ms will be used", name, s.Settings.ReadTimeout))
		}
		if s.AutoReconnect.Enabled && s.AutoReconnect.Server == "" {
			warnings = append(warnings, fmt.Sprintf("session %q enables auto_reconnect without a server", name))
		}
	}

	return warnings
}
