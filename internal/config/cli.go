package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// CLI holds the cwljob CLI's configuration. Values come from, in order of
// precedence: flags (bound by the command layer), environment variables with
// the CWLJOB_ prefix, a config file, and these defaults.
type CLI struct {
	ServiceName  string        // container name of the managed service
	Host         string        // service host for unmanaged services
	Port         int           // published service port
	Image        string        // service image for `service up`
	RegistryPath string        // sqlite file holding persisted service refs
	MetricsPort  string        // serve Prometheus metrics when non-empty
	PollInitial  time.Duration // first wait between state polls
	PollMax      time.Duration // cap on the wait between state polls
}

// LoadCLI reads configuration via viper. cfgFile overrides the default
// config file location ($HOME/.cwljob.yaml).
func LoadCLI(v *viper.Viper, cfgFile string) (*CLI, error) {
	v.SetDefault("service_name", "cwljob-service")
	v.SetDefault("host", "http://localhost")
	v.SetDefault("port", 29593)
	v.SetDefault("image", "")
	v.SetDefault("registry_path", defaultRegistryPath())
	v.SetDefault("metrics_port", "")
	v.SetDefault("poll_initial", 500*time.Millisecond)
	v.SetDefault("poll_max", 10*time.Second)

	v.SetEnvPrefix("CWLJOB")
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
			v.SetConfigName(".cwljob")
			v.SetConfigType("yaml")
		}
	}

	// A missing config file is fine; defaults and env still apply.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && cfgFile != "" {
			return nil, err
		}
	}

	return &CLI{
		ServiceName:  v.GetString("service_name"),
		Host:         v.GetString("host"),
		Port:         v.GetInt("port"),
		Image:        v.GetString("image"),
		RegistryPath: v.GetString("registry_path"),
		MetricsPort:  v.GetString("metrics_port"),
		PollInitial:  v.GetDuration("poll_initial"),
		PollMax:      v.GetDuration("poll_max"),
	}, nil
}

func defaultRegistryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cwljob-services.db"
	}
	return filepath.Join(home, ".cwljob-services.db")
}
