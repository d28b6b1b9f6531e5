// Package config resolves routeshot options from defaults, an optional YAML
// file and ROUTESHOT_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/root4loot/routeshot"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every option key to form its environment variable,
// e.g. ROUTESHOT_BASE_URL.
const EnvPrefix = "ROUTESHOT"

// FileName is the config file looked up in the working directory when no
// explicit path is given. Any extension viper supports is accepted.
const FileName = "routeshot"

// Load resolves options. When path is empty, routeshot.{yaml,json,toml,...}
// is read from the working directory if present. It returns the config file
// that was used, or "" when there was none.
func Load(path string) (*routeshot.Options, string, error) {
	return load(path, ".")
}

func load(path string, dirs ...string) (*routeshot.Options, string, error) {
	v := viper.New()
	SetDefaults(v, routeshot.DefaultOptions())

	if path != "" {
		v.SetConfigFile(path)
	} else {
		for _, dir := range dirs {
			v.AddConfigPath(dir)
		}
		v.SetConfigName(FileName)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, "", fmt.Errorf("failed to read config: %w", err)
		}
	}

	var opts routeshot.Options
	if err := v.Unmarshal(&opts); err != nil {
		return nil, "", fmt.Errorf("failed to decode config: %w", err)
	}
	return &opts, v.ConfigFileUsed(), nil
}

// SetDefaults registers every option key with its value from d. Keys must be
// registered for environment variables to be picked up by Unmarshal.
func SetDefaults(v *viper.Viper, d *routeshot.Options) {
	v.SetDefault("base_url", d.BaseURL)
	v.SetDefault("email", d.Email)
	v.SetDefault("password", d.Password)
	v.SetDefault("output_dir", d.OutputDir)
	v.SetDefault("image_format", d.ImageFormat)
	v.SetDefault("image_quality", d.ImageQuality)
	v.SetDefault("capture_width", d.CaptureWidth)
	v.SetDefault("capture_height", d.CaptureHeight)

	v.SetDefault("backend", d.Backend)
	v.SetDefault("browser_bin", d.BrowserBin)
	v.SetDefault("settle_strategy", d.SettleStrategy)
	v.SetDefault("settle_delay", d.SettleDelay)
	v.SetDefault("settle_selector", d.SettleSelector)
	v.SetDefault("navigation_timeout", d.NavigationTimeout)
	v.SetDefault("disable_images", d.DisableImages)

	v.SetDefault("login_path", d.LoginPath)
	v.SetDefault("login_success_path", d.LoginSuccessPath)
	v.SetDefault("login_timeout", d.LoginTimeout)

	v.SetDefault("manage_server", d.ManageServer)
	v.SetDefault("server_command", d.ServerCommand)
	v.SetDefault("server_dir", d.ServerDir)
	v.SetDefault("layout_marker", d.LayoutMarker)
	v.SetDefault("ready_grace", d.ReadyGrace)
	v.SetDefault("ready_timeout", d.ReadyTimeout)
	v.SetDefault("ready_interval", d.ReadyInterval)
	v.SetDefault("probe_timeout", d.ProbeTimeout)
	v.SetDefault("stop_timeout", d.StopTimeout)

	v.SetDefault("url_in_image", d.URLInImage)
	v.SetDefault("avoid_duplicates", d.AvoidDuplicates)
	v.SetDefault("duplicate_threshold", d.DuplicateThreshold)
	v.SetDefault("debug", d.Debug)
}
