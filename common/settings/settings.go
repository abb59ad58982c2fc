package settings

import (
	"strings"

	"github.com/spf13/viper"
)

const (
	keyDatabaseURI          = "db_url"
	keyObjectStoreEndpoint  = "object_store_endpoint"
	keyObjectStoreAccessKey = "object_store_access_key"
	keyObjectStoreSecretKey = "object_store_secret_key"
	keyObjectStoreSecure    = "object_store_secure"
	keyMessageBusURL        = "message_bus_url"
	keyServiceBaseURL       = "service_base_url"
)

// Settings resolves engine configuration from the environment. Each value is
// accepted under an ACC_-prefixed name and a legacy alias left over from the
// deployments this engine replaced; the ACC_ name wins when both are set.
type Settings struct {
	v *viper.Viper
}

func New() *Settings {
	v := viper.New()
	v.BindEnv(keyDatabaseURI, "ACC_DB_URL", "POSTGRES_DSN")
	v.BindEnv(keyObjectStoreEndpoint, "ACC_MINIO_ENDPOINT", "MINIO_ENDPOINT")
	v.BindEnv(keyObjectStoreAccessKey, "ACC_MINIO_ACCESS_KEY", "MINIO_ACCESS_KEY")
	v.BindEnv(keyObjectStoreSecretKey, "ACC_MINIO_SECRET_KEY", "MINIO_SECRET_KEY")
	v.BindEnv(keyObjectStoreSecure, "ACC_MINIO_SECURE", "MINIO_SECURE")
	v.BindEnv(keyMessageBusURL, "ACC_RABBITMQ_URL", "RABBITMQ_URL")
	v.BindEnv(keyServiceBaseURL, "ACC_SERVICE_URL", "SERVICE_URL")
	return &Settings{v: v}
}

// DatabaseURI returns the datastore connection string, or empty if unset.
func (s *Settings) DatabaseURI() string {
	return s.v.GetString(keyDatabaseURI)
}

// DatabaseURIOr returns the datastore connection string, or def if unset.
func (s *Settings) DatabaseURIOr(def string) string {
	if uri := s.DatabaseURI(); uri != "" {
		return uri
	}
	return def
}

// ObjectStoreEndpoint returns the object store endpoint, or empty if unset.
func (s *Settings) ObjectStoreEndpoint() string {
	return s.v.GetString(keyObjectStoreEndpoint)
}

func (s *Settings) ObjectStoreAccessKey() string {
	return s.v.GetString(keyObjectStoreAccessKey)
}

func (s *Settings) ObjectStoreSecretKey() string {
	return s.v.GetString(keyObjectStoreSecretKey)
}

// ObjectStoreSecure reports whether the object store connection should use
// TLS. Defaults to false when unset.
func (s *Settings) ObjectStoreSecure() bool {
	return ParseBool(s.v.GetString(keyObjectStoreSecure), false)
}

// MessageBusURL returns the optional message bus URL, or empty if unset.
func (s *Settings) MessageBusURL() string {
	return s.v.GetString(keyMessageBusURL)
}

// ServiceBaseURL returns the optional base URL workers use to reach the
// engine's API, or empty if unset.
func (s *Settings) ServiceBaseURL() string {
	return s.v.GetString(keyServiceBaseURL)
}

// ParseBool interprets the common truthy spellings ("1", "true", "yes",
// "on") case-insensitively. Anything else, including empty, yields def.
func ParseBool(value string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
