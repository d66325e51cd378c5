package config

import "github.com/spf13/viper"

const (
	StoreDriverFile  = "file"
	StoreDriverRedis = "redis"
)

const (
	keyStoreDriver     = "store.driver"
	keyStorePath       = "store.path"
	keyStorePassphrase = "store.passphrase"
	keyStoreKeyPrefix  = "store.key_prefix"
	keyRedisAddr       = "store.redis_addr"
	keyRedisPassword   = "store.redis_password"
	keyRedisDB         = "store.redis_db"
)

type StoreConfig interface {
	GetStoreDriver() string
	GetStorePath() string
	GetStorePassphrase() string
	GetStoreKeyPrefix() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
}

type Store struct {
	v *viper.Viper
}

var _ StoreConfig = Store{}

func (c Store) GetStoreDriver() string {
	return c.v.GetString(keyStoreDriver)
}

func (c Store) GetStorePath() string {
	return c.v.GetString(keyStorePath)
}

// GetStorePassphrase seals token fields in the file store. Empty leaves them in clear text.
func (c Store) GetStorePassphrase() string {
	return c.v.GetString(keyStorePassphrase)
}

func (c Store) GetStoreKeyPrefix() string {
	return c.v.GetString(keyStoreKeyPrefix)
}

func (c Store) GetRedisAddr() string {
	return c.v.GetString(keyRedisAddr)
}

func (c Store) GetRedisPassword() string {
	return c.v.GetString(keyRedisPassword)
}

func (c Store) GetRedisDB() int {
	return c.v.GetInt(keyRedisDB)
}
