package config

import (
	"time"

	"github.com/spf13/viper"
)

// DefaultScanInterval is in seconds.
const DefaultScanInterval = 60

const (
	keyScanInterval = "poll.scan_interval"
	keyAutoClaim    = "poll.auto_claim"
	keyAccounts     = "poll.accounts"
)

type PollConfig interface {
	GetScanInterval() time.Duration
	GetAutoClaim() bool
	GetAccounts() []string
}

type Poll struct {
	v *viper.Viper
}

var _ PollConfig = Poll{}

// GetScanInterval returns zero or a negative duration when periodic polling is disabled.
func (c Poll) GetScanInterval() time.Duration {
	return time.Duration(c.v.GetInt(keyScanInterval)) * time.Second
}

// GetAutoClaim reports whether a new reading is claimed before the detail fetch.
func (c Poll) GetAutoClaim() bool {
	return c.v.GetBool(keyAutoClaim)
}

func (c Poll) GetAccounts() []string {
	return c.v.GetStringSlice(keyAccounts)
}
