package config

import "github.com/spf13/viper"

const DefaultAPIDomain = "https://lsprod3.laisitech.com"

const (
	keyAPIDomain       = "vendor.api_domain"
	keyAppID           = "vendor.app_id"
	keyAppSecret       = "vendor.app_secret"
	keyPlatform        = "vendor.platform"
	keyProtocolVersion = "vendor.version"
	keyTimeZone        = "vendor.time_zone"
	keyAppVersion      = "vendor.app_version"
	keyShareAppVersion = "vendor.share_app_version"
	keyUserAgent       = "vendor.user_agent"
	keyShareUserAgent  = "vendor.share_user_agent"
)

// VendorConfig holds the fixed identity the client presents to the vendor backend.
type VendorConfig interface {
	GetAPIDomain() string
	GetAppID() string
	GetAppSecret() string
	GetPlatform() string
	GetProtocolVersion() string
	GetTimeZone() string
	GetAppVersion() string
	GetShareAppVersion() string
	GetUserAgent() string
	GetShareUserAgent() string
}

type Vendor struct {
	v *viper.Viper
}

var _ VendorConfig = Vendor{}

func (c Vendor) GetAPIDomain() string {
	return c.v.GetString(keyAPIDomain)
}

func (c Vendor) GetAppID() string {
	return c.v.GetString(keyAppID)
}

func (c Vendor) GetAppSecret() string {
	return c.v.GetString(keyAppSecret)
}

func (c Vendor) GetPlatform() string {
	return c.v.GetString(keyPlatform)
}

func (c Vendor) GetProtocolVersion() string {
	return c.v.GetString(keyProtocolVersion)
}

func (c Vendor) GetTimeZone() string {
	return c.v.GetString(keyTimeZone)
}

func (c Vendor) GetAppVersion() string {
	return c.v.GetString(keyAppVersion)
}

// GetShareAppVersion is the app version the embedded web view reports on share-link requests.
func (c Vendor) GetShareAppVersion() string {
	return c.v.GetString(keyShareAppVersion)
}

func (c Vendor) GetUserAgent() string {
	return c.v.GetString(keyUserAgent)
}

func (c Vendor) GetShareUserAgent() string {
	return c.v.GetString(keyShareUserAgent)
}
