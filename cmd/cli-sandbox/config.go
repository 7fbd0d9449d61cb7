package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"

	"github.com/calvinalkan/cli-sandbox/sandbox"
)

// ErrDuplicateConfigFiles is returned when both .json and .jsonc config files exist.
var ErrDuplicateConfigFiles = errors.New("duplicate config files")

// envProfile selects the build profile from the environment.
const envProfile = "CLI_SANDBOX_PROFILE"

// Config holds the application configuration.
type Config struct {
	// Profile is "debug" or "release".
	Profile string `json:"profile,omitempty"`
	// TargetDir is the build output root holding <profile>/<binary>.
	TargetDir string `json:"target_dir,omitempty"`
	// Binary is the file name of the program under test.
	Binary string `json:"binary,omitempty"`
	// Executable, when set, is used as-is and skips profile resolution.
	Executable string `json:"executable,omitempty"`
	// ScrubEnvPrefix removes matching variables before every case.
	ScrubEnvPrefix string `json:"scrub_env_prefix,omitempty"`
	// Env is added to the environment of the program under test.
	Env map[string]string `json:"env,omitempty"`

	// Resolved (not serialized)
	EffectiveCwd      string            `json:"-"`
	HomeDir           string            `json:"-"`
	LoadedConfigFiles map[string]string `json:"-"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Profile: sandbox.ProfileDebug.String(),
	}
}

// LoadConfigInput holds the inputs for LoadConfig.
type LoadConfigInput struct {
	WorkDirOverride string            // -C/--cwd flag value; if empty, os.Getwd() is used
	ConfigPath      string            // --config flag value
	Env             map[string]string // Environment variables (XDG_CONFIG_HOME, CLI_SANDBOX_*)
}

// LoadConfig loads configuration with the following precedence (later overrides earlier):
//  1. Built-in defaults
//  2. Global config: $XDG_CONFIG_HOME/cli-sandbox/config.json or config.jsonc
//     (defaults to ~/.config/cli-sandbox/) - always loaded if exists
//  3. Project config OR --config path (not both):
//     - Without --config: .cli-sandbox.json or .cli-sandbox.jsonc in workDir
//     - With --config: uses that path instead of project config
//  4. CLI_SANDBOX_PROFILE, CLI_SANDBOX_TARGET_DIR and CLI_SANDBOX_BIN
//
// Both .json and .jsonc files support comments via tailscale/hujson.
// If both .json and .jsonc exist at the same location, it's an error.
func LoadConfig(input LoadConfigInput) (Config, error) {
	workDir, err := resolveWorkDir(input.WorkDirOverride)
	if err != nil {
		return Config{}, err
	}

	cfg := DefaultConfig()
	cfg.LoadedConfigFiles = map[string]string{}

	globalConfigBasePath, err := getUserConfigBasePath(input.Env)
	if err != nil {
		return Config{}, err
	}

	if globalConfigBasePath != "" {
		globalConfigPath, findErr := findConfigFile(globalConfigBasePath)
		if findErr == nil {
			globalCfg, loadErr := loadConfigFile(globalConfigPath)
			if loadErr != nil {
				return Config{}, loadErr
			}

			cfg = mergeConfigs(&cfg, &globalCfg)
			cfg.LoadedConfigFiles["global"] = globalConfigPath
		} else if !errors.Is(findErr, os.ErrNotExist) {
			return Config{}, findErr
		}
	}

	if input.ConfigPath != "" {
		configPath := input.ConfigPath
		if !filepath.IsAbs(configPath) {
			configPath = filepath.Join(workDir, configPath)
		}

		explicitCfg, err := loadConfigFile(configPath)
		if err != nil {
			return Config{}, err
		}

		cfg = mergeConfigs(&cfg, &explicitCfg)
		cfg.LoadedConfigFiles["explicit"] = configPath
	} else {
		projectConfigPath, findErr := findConfigFile(filepath.Join(workDir, ".cli-sandbox"))
		if findErr == nil {
			projectCfg, loadErr := loadConfigFile(projectConfigPath)
			if loadErr != nil {
				return Config{}, loadErr
			}

			cfg = mergeConfigs(&cfg, &projectCfg)
			cfg.LoadedConfigFiles["project"] = projectConfigPath
		} else if !errors.Is(findErr, os.ErrNotExist) {
			return Config{}, findErr
		}
	}

	envCfg := Config{
		Profile:   input.Env[envProfile],
		TargetDir: input.Env[sandbox.EnvTargetDir],
		Binary:    input.Env[sandbox.EnvBinary],
	}
	cfg = mergeConfigs(&cfg, &envCfg)

	cfg.EffectiveCwd = workDir
	cfg.HomeDir = input.Env["HOME"]

	if cfg.HomeDir == "" {
		cfg.HomeDir, _ = os.UserHomeDir()
	}

	return cfg, nil
}

func resolveWorkDir(override string) (string, error) {
	workDir := override
	if workDir == "" {
		var err error

		workDir, err = os.Getwd()
		if err != nil {
			return "", fmt.Errorf("cannot get working directory: %w", err)
		}
	}

	if !filepath.IsAbs(workDir) {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("cannot get working directory: %w", err)
		}

		workDir = filepath.Join(cwd, workDir)
	}

	return workDir, nil
}

// findConfigFile finds <basePath>.json or <basePath>.jsonc.
// Returns an error if both exist and os.ErrNotExist if neither does.
func findConfigFile(basePath string) (string, error) {
	jsonPath := basePath + ".json"
	jsoncPath := basePath + ".jsonc"

	jsonExists, jsonErr := fileExists(jsonPath)
	if jsonErr != nil {
		return "", jsonErr
	}

	jsoncExists, jsoncErr := fileExists(jsoncPath)
	if jsoncErr != nil {
		return "", jsoncErr
	}

	if jsonExists && jsoncExists {
		return "", fmt.Errorf("%w: both %s and %s exist; remove one", ErrDuplicateConfigFiles, jsonPath, jsoncPath)
	}

	if jsonExists {
		return jsonPath, nil
	}

	if jsoncExists {
		return jsoncPath, nil
	}

	return "", os.ErrNotExist
}

// fileExists checks if a file exists and is not a directory.
// Returns (true, nil) if file exists, (false, nil) if not found,
// or (false, error) for other errors (e.g., permission denied).
func fileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}

		return false, fmt.Errorf("checking file %s: %w", path, err)
	}

	if info.IsDir() {
		return false, nil
	}

	return true, nil
}

// loadConfigFile loads and parses a JSON/JSONC config file.
func loadConfigFile(path string) (Config, error) {
	var cfg Config

	err := decodeJSONC(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("config %w", err)
	}

	if cfg.Profile != "" {
		_, err = sandbox.ParseProfile(cfg.Profile)
		if err != nil {
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
	}

	return cfg, nil
}

// decodeJSONC reads path, strips comments and trailing commas and decodes the
// result into v. Unknown fields are rejected so typos don't go unnoticed.
func decodeJSONC(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	dec := json.NewDecoder(bytes.NewReader(standardized))
	dec.DisallowUnknownFields()

	err = dec.Decode(v)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	return nil
}

// mergeConfigs merges override into base, with override taking precedence.
// Empty/zero values in override do not override base values. Env maps are
// merged key by key.
func mergeConfigs(base, override *Config) Config {
	result := *base

	if override.Profile != "" {
		result.Profile = override.Profile
	}

	if override.TargetDir != "" {
		result.TargetDir = override.TargetDir
	}

	if override.Binary != "" {
		result.Binary = override.Binary
	}

	if override.Executable != "" {
		result.Executable = override.Executable
	}

	if override.ScrubEnvPrefix != "" {
		result.ScrubEnvPrefix = override.ScrubEnvPrefix
	}

	if len(override.Env) > 0 {
		merged := maps.Clone(base.Env)
		if merged == nil {
			merged = make(map[string]string, len(override.Env))
		}

		maps.Copy(merged, override.Env)
		result.Env = merged
	}

	return result
}

// getUserConfigBasePath returns the user config base path (without extension).
// Uses env map for XDG_CONFIG_HOME instead of os.Getenv().
func getUserConfigBasePath(env map[string]string) (string, error) {
	if xdg, ok := env["XDG_CONFIG_HOME"]; ok && xdg != "" {
		return filepath.Join(xdg, "cli-sandbox", "config"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	return filepath.Join(home, ".config", "cli-sandbox", "config"), nil
}

// ResolveExecutable returns the program under test and the profile it was
// resolved for. profileOverride and exeOverride come from flags and win over
// the config.
func (c *Config) ResolveExecutable(profileOverride, exeOverride string) (string, sandbox.Profile, error) {
	name := c.Profile
	if profileOverride != "" {
		name = profileOverride
	}

	profile, err := sandbox.ParseProfile(name)
	if err != nil {
		return "", 0, err
	}

	exe := c.Executable
	if exeOverride != "" {
		exe = exeOverride
	}

	if exe != "" {
		exe, err = ResolvePath(exe, c.HomeDir, c.EffectiveCwd)
		if err != nil {
			return "", 0, err
		}

		return exe, profile, nil
	}

	targetDir := c.TargetDir
	if targetDir != "" {
		targetDir, err = ResolvePath(targetDir, c.HomeDir, c.EffectiveCwd)
		if err != nil {
			return "", 0, err
		}
	}

	path, err := sandbox.Resolver{TargetDir: targetDir, Binary: c.Binary}.Resolve(profile)
	if err != nil {
		return "", 0, err
	}

	return path, profile, nil
}
