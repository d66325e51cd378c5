package config

import (
	"time"

	"github.com/spf13/viper"
)

const (
	keyHTTPTimeout        = "http.timeout"
	keyBreakerMaxFailures = "breaker.max_failures"
	keyBreakerOpenTimeout = "breaker.open_timeout"
)

type HTTPConfig interface {
	GetHTTPTimeout() time.Duration
	GetBreakerMaxFailures() uint32
	GetBreakerOpenTimeout() time.Duration
}

type HTTP struct {
	v *viper.Viper
}

var _ HTTPConfig = HTTP{}

// GetHTTPTimeout bounds every vendor call.
func (c HTTP) GetHTTPTimeout() time.Duration {
	return c.v.GetDuration(keyHTTPTimeout)
}

// GetBreakerMaxFailures is the number of consecutive network failures that opens the breaker.
func (c HTTP) GetBreakerMaxFailures() uint32 {
	n := c.v.GetInt(keyBreakerMaxFailures)
	if n < 1 {
		return 1
	}
	return uint32(n)
}

func (c HTTP) GetBreakerOpenTimeout() time.Duration {
	return c.v.GetDuration(keyBreakerOpenTimeout)
}
