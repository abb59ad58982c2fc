package settings

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDatabaseURIAliases(t *testing.T) {
	t.Setenv("ACC_DB_URL", "")
	t.Setenv("POSTGRES_DSN", "")

	s := New()
	require.Equal(t, "", s.DatabaseURI())
	require.Equal(t, "fallback", s.DatabaseURIOr("fallback"))

	t.Setenv("POSTGRES_DSN", "postgres://legacy")
	require.Equal(t, "postgres://legacy", New().DatabaseURI())

	// The ACC_ name wins when both are set
	t.Setenv("ACC_DB_URL", "postgres://preferred")
	require.Equal(t, "postgres://preferred", New().DatabaseURI())
}

func TestObjectStoreAliases(t *testing.T) {
	t.Setenv("MINIO_ENDPOINT", "minio.internal:9000")
	t.Setenv("MINIO_ACCESS_KEY", "legacy-access")
	t.Setenv("ACC_MINIO_SECRET_KEY", "preferred-secret")

	s := New()
	require.Equal(t, "minio.internal:9000", s.ObjectStoreEndpoint())
	require.Equal(t, "legacy-access", s.ObjectStoreAccessKey())
	require.Equal(t, "preferred-secret", s.ObjectStoreSecretKey())
}

func TestObjectStoreSecure(t *testing.T) {
	for _, value := range []string{"1", "true", "TRUE", "Yes", "on", " ON "} {
		t.Setenv("ACC_MINIO_SECURE", value)
		require.True(t, New().ObjectStoreSecure(), "value %q should be truthy", value)
	}
	for _, value := range []string{"0", "false", "No", "off", ""} {
		t.Setenv("ACC_MINIO_SECURE", value)
		require.False(t, New().ObjectStoreSecure(), "value %q should be falsy", value)
	}
}

func TestParseBool(t *testing.T) {
	require.True(t, ParseBool("garbage", true))
	require.False(t, ParseBool("garbage", false))
	require.True(t, ParseBool("YES", false))
	require.False(t, ParseBool("OFF", true))
}
