package config

import "github.com/spf13/viper"

const (
	keyAMQPURL   = "publish.amqp_url"
	keyAMQPQueue = "publish.queue"
	keyLogLevel  = "log.level"
	keyLogFormat = "log.format"
)

type PublishConfig interface {
	GetAMQPURL() string
	GetAMQPQueue() string
}

type Publish struct {
	v *viper.Viper
}

var _ PublishConfig = Publish{}

// GetAMQPURL is empty when readings are not published to a broker.
func (c Publish) GetAMQPURL() string {
	return c.v.GetString(keyAMQPURL)
}

func (c Publish) GetAMQPQueue() string {
	return c.v.GetString(keyAMQPQueue)
}

type LogConfig interface {
	GetLogLevel() string
	GetLogFormat() string
}

type Log struct {
	v *viper.Viper
}

var _ LogConfig = Log{}

func (c Log) GetLogLevel() string {
	return c.v.GetString(keyLogLevel)
}

func (c Log) GetLogFormat() string {
	return c.v.GetString(keyLogFormat)
}
