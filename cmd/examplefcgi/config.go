package main

import (
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// appConfig is the example program's own configuration, layered from a
// YAML file (if present) and then EXAMPLEFCGI_-prefixed environment
// variables, which always win.
type appConfig struct {
	ListenUnixPath string `koanf:"listen.unix_path"`
	ListenTCPAddr  string `koanf:"listen.tcp_addr"`
	Workers        int    `koanf:"workers"`
	MaxPostSize    int    `koanf:"max_post_size"`
	Debug          bool   `koanf:"debug"`
}

func defaultAppConfig() appConfig {
	return appConfig{
		Workers:     0,
		MaxPostSize: 1 << 20,
	}
}

// envKeyMap maps the EXAMPLEFCGI_-prefix-stripped, upper-cased
// environment variable name to the exact koanf key its struct tag
// uses. An algorithmic underscore-to-dot rewrite can't tell a section
// delimiter from an underscore inside a field name (listen.unix_path
// has both), so every bindable variable is listed explicitly instead.
var envKeyMap = map[string]string{
	"LISTEN_UNIX_PATH": "listen.unix_path",
	"LISTEN_TCP_ADDR":  "listen.tcp_addr",
	"WORKERS":          "workers",
	"MAX_POST_SIZE":    "max_post_size",
	"DEBUG":            "debug",
}

// loadConfig reads configPath (if it exists) as YAML, then overlays any
// EXAMPLEFCGI_* environment variable listed in envKeyMap; unrecognized
// variables are left unbound rather than guessed at.
func loadConfig(configPath string) (appConfig, error) {
	k := koanf.New(".")
	cfg := defaultAppConfig()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
				return cfg, err
			}
		}
	}

	if err := k.Load(env.ProviderWithValue("EXAMPLEFCGI_", ".", func(key, value string) (string, interface{}) {
		key = strings.TrimPrefix(key, "EXAMPLEFCGI_")
		mapped, ok := envKeyMap[key]
		if !ok {
			return "", nil
		}
		return mapped, value
	}), nil); err != nil {
		return cfg, err
	}

	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{FlatPaths: true}); err != nil {
		return cfg, err
	}
	return cfg, nil
}
