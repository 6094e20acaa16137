// Package config loads butido's configuration: one config file (an explicit
// path, or the first file found on the XDG/home/etc search path), with every
// key further overridable by a BUTIDO_-prefixed environment variable
// (spec.md §6 "Configuration file"). Files on the search path are not
// layered over each other; only the first one found is read.
package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"
	"golang.org/x/xerrors"

	"github.com/butido/butido/internal/endpoint"
)

const envPrefix = "BUTIDO"

// knownHighlightThemes is the allowed set for script_highlight_theme
// (spec.md §6: "must be in a known allowed set if set"). Kept small and
// explicit rather than deferring to a syntax-highlighting library's full
// theme list, since that concern itself is out of scope (spec.md §1).
var knownHighlightThemes = map[string]bool{
	"base16-ocean.dark":  true,
	"base16-ocean.light": true,
	"InspiredGitHub":     true,
	"Solarized (dark)":   true,
	"Solarized (light)":  true,
	"none":               true,
}

// Configuration is the fully-resolved, validated view of every key
// spec.md §6 lists.
type Configuration struct {
	Repository string `mapstructure:"repository"`

	Releases      string   `mapstructure:"releases"`
	ReleaseStores []string `mapstructure:"release_stores"`

	Staging     string `mapstructure:"staging"`
	SourceCache string `mapstructure:"source_cache"`
	LogDir      string `mapstructure:"log_dir"`

	Database DatabaseConfig `mapstructure:"database"`

	Docker     DockerConfig     `mapstructure:"docker"`
	Containers ContainersConfig `mapstructure:"containers"`

	AvailablePhases []string `mapstructure:"available_phases"`

	ScriptHighlightTheme string `mapstructure:"script_highlight_theme"`

	ProgressFormat      string `mapstructure:"progress_format"`
	SpinnerFormat       string `mapstructure:"spinner_format"`
	PackagePrintFormat  string `mapstructure:"package_print_format"`
	StrictInterpolation bool   `mapstructure:"strict_script_interpolation"`
	Shebang             string `mapstructure:"shebang"`
}

// DatabaseConfig is the `database_*` key group.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     uint16 `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
}

// DSN formats the config as a lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Password, d.Name)
}

// DockerConfig is the `docker.*` key group.
type DockerConfig struct {
	Images              []string                `mapstructure:"images"`
	Endpoints           map[string]EndpointEntry `mapstructure:"endpoints"`
	DockerVersions      []string                `mapstructure:"docker_versions"`
	DockerAPIVersions   []string                `mapstructure:"docker_api_versions"`
	VerifyImagesPresent bool                     `mapstructure:"verify_images_present"`

	// KeepFailedContainers controls the delete policy spec.md §9 requires
	// to be configurable: keep a failed job's container around for
	// `docker exec`/`docker logs` debugging instead of removing it.
	// Defaults to true (keep-on-failure).
	KeepFailedContainers bool `mapstructure:"keep_failed_containers"`
}

// EndpointEntry is one entry of `docker.endpoints`.
type EndpointEntry struct {
	URI          string `mapstructure:"uri"`
	EndpointType string `mapstructure:"endpoint_type"`
	Speed        uint   `mapstructure:"speed"`
	MaxJobs      uint   `mapstructure:"maxjobs"`
}

// ContainersConfig is the `containers.*` key group.
type ContainersConfig struct {
	AllowedEnv []string `mapstructure:"allowed_env"`
}

// Load reads the layered configuration: a root config file at
// explicitPath if given, else the first of the XDG search paths that
// exists, with every key overridable by a BUTIDO_ prefixed environment
// variable (e.g. BUTIDO_REPOSITORY, BUTIDO_DATABASE_HOST,
// BUTIDO_STRICT_SCRIPT_INTERPOLATION).
func Load(explicitPath string) (*Configuration, error) {
	v := viper.New()
	v.SetConfigType("toml")

	setDefaults(v)

	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
	} else {
		v.SetConfigName("butido")
		v.AddConfigPath("$XDG_CONFIG_HOME/butido")
		v.AddConfigPath("$HOME/.config/butido")
		v.AddConfigPath("/etc/butido")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, xerrors.Errorf("reading configuration: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Configuration
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, xerrors.Errorf("decoding configuration: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, xerrors.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("strict_script_interpolation", true)
	v.SetDefault("shebang", "#!/bin/bash")
	v.SetDefault("docker.verify_images_present", true)
	v.SetDefault("docker.keep_failed_containers", true)
	v.SetDefault("progress_format", "{package}: {percent}%")
	v.SetDefault("spinner_format", "{package}: working...")
	v.SetDefault("package_print_format", "{name}-{version}")
}

// validate enforces the fatal-at-startup configuration errors spec.md §7
// names: missing required keys, an unknown highlight theme, and endpoint
// URI parse failures.
func (c *Configuration) validate() error {
	var missing []string
	if c.Repository == "" {
		missing = append(missing, "repository")
	}
	if c.Releases == "" {
		missing = append(missing, "releases")
	}
	if c.Staging == "" {
		missing = append(missing, "staging")
	}
	if c.SourceCache == "" {
		missing = append(missing, "source_cache")
	}
	if c.LogDir == "" {
		missing = append(missing, "log_dir")
	}
	if c.Database.Host == "" {
		missing = append(missing, "database_host")
	}
	if c.Database.Name == "" {
		missing = append(missing, "database_name")
	}
	if len(c.AvailablePhases) == 0 {
		missing = append(missing, "available_phases")
	}
	if len(missing) > 0 {
		return xerrors.Errorf("missing required configuration keys: %s", strings.Join(missing, ", "))
	}

	if c.ScriptHighlightTheme != "" && !knownHighlightThemes[c.ScriptHighlightTheme] {
		return xerrors.Errorf("unknown script_highlight_theme %q", c.ScriptHighlightTheme)
	}

	for name, e := range c.Docker.Endpoints {
		if e.URI == "" {
			return xerrors.Errorf("endpoint %q: empty uri", name)
		}
		if _, err := url.Parse(e.URI); err != nil {
			return xerrors.Errorf("endpoint %q: invalid uri %q: %w", name, e.URI, err)
		}
		if e.EndpointType != string(endpoint.TypeSocket) && e.EndpointType != string(endpoint.TypeHTTP) {
			return xerrors.Errorf("endpoint %q: endpoint_type must be %q or %q, got %q", name, endpoint.TypeSocket, endpoint.TypeHTTP, e.EndpointType)
		}
	}

	return nil
}

// EndpointConfigs translates the config's docker.endpoints map into
// endpoint.Config values ready for endpoint.New, applying the shared
// docker_versions/docker_api_versions/verify_images_present and the
// docker.images whitelist as each endpoint's required images.
func (c *Configuration) EndpointConfigs() []endpoint.Config {
	out := make([]endpoint.Config, 0, len(c.Docker.Endpoints))
	for name, e := range c.Docker.Endpoints {
		out = append(out, endpoint.Config{
			Name:                name,
			URI:                 e.URI,
			EndpointType:        endpoint.Type(e.EndpointType),
			Speed:               e.Speed,
			MaxJobs:             e.MaxJobs,
			DockerVersions:      c.Docker.DockerVersions,
			DockerAPIVersions:   c.Docker.DockerAPIVersions,
			VerifyImagesPresent: c.Docker.VerifyImagesPresent,
			RequiredImages:      c.Docker.Images,
			KeepFailedContainers: c.Docker.KeepFailedContainers,
		})
	}
	return out
}
