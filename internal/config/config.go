package config

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const envPrefix = "LSTECH"

type Config interface {
	VendorConfig
	HTTPConfig
	PollConfig
	StoreConfig
	PublishConfig
	LogConfig
	Viper() *viper.Viper
}

type mainConfig struct {
	Vendor
	HTTP
	Poll
	Store
	Publish
	Log
	v *viper.Viper
}

func (c mainConfig) Viper() *viper.Viper {
	return c.v
}

// Load reads defaults, the optional config file at path and LSTECH_* environment variables.
func Load(path string) (Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config.Load ReadInConfig %s: %w", path, err)
		}
	}
	return FromViper(v), nil
}

// FromViper wraps an existing viper instance, filling in defaults and environment binding.
func FromViper(v *viper.Viper) Config {
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return mainConfig{
		Vendor:  Vendor{v: v},
		HTTP:    HTTP{v: v},
		Poll:    Poll{v: v},
		Store:   Store{v: v},
		Publish: Publish{v: v},
		Log:     Log{v: v},
		v:       v,
	}
}

// Watch calls onChange whenever the config file backing cfg is rewritten.
func Watch(cfg Config, onChange func(Config)) {
	v := cfg.Viper()
	v.OnConfigChange(func(fsnotify.Event) {
		onChange(cfg)
	})
	v.WatchConfig()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(keyAPIDomain, DefaultAPIDomain)
	v.SetDefault(keyAppID, "129836377288")
	v.SetDefault(keyAppSecret, "pOsgYHfmYNQzTbnTJXGpfYhvkRSsByBw")
	v.SetDefault(keyPlatform, "android")
	v.SetDefault(keyProtocolVersion, "v1")
	v.SetDefault(keyTimeZone, "Asia/Shanghai")
	v.SetDefault(keyAppVersion, "3.0.1401")
	v.SetDefault(keyShareAppVersion, "3.0.1406")
	v.SetDefault(keyUserAgent, "okhttp/5.0.0-alpha.2")
	v.SetDefault(keyShareUserAgent, "Mozilla/5.0 (Linux; Android 13; wv) AppleWebKit/537.36 (KHTML, like Gecko) Version/4.0 Chrome/138.0.7204.181 Mobile Safari/537.36lsTech")

	v.SetDefault(keyHTTPTimeout, "10s")
	v.SetDefault(keyBreakerMaxFailures, 5)
	v.SetDefault(keyBreakerOpenTimeout, "60s")

	v.SetDefault(keyScanInterval, DefaultScanInterval)
	v.SetDefault(keyAutoClaim, false)

	v.SetDefault(keyStoreDriver, StoreDriverFile)
	v.SetDefault(keyStorePath, "./data")
	v.SetDefault(keyStoreKeyPrefix, "lstech:session:")
	v.SetDefault(keyRedisAddr, "localhost:6379")
	v.SetDefault(keyRedisDB, 0)

	v.SetDefault(keyAMQPQueue, "lstech.readings")

	v.SetDefault(keyLogLevel, "info")
	v.SetDefault(keyLogFormat, "console")
}
