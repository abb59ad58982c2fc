package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResourceNameValidate(t *testing.T) {
	require.NoError(t, ResourceName("transcode-video_2").Validate())
	require.Error(t, ResourceName("").Validate())
	require.Error(t, ResourceName("no spaces allowed").Validate())
	require.Error(t, ResourceName("no/slashes").Validate())
	require.Error(t, ResourceName(strings.Repeat("a", 101)).Validate())
	require.NoError(t, ResourceName(strings.Repeat("a", 100)).Validate())
}

func TestNormalizeResourceName(t *testing.T) {
	assert.Equal(t, "worker-01-example-com", NormalizeResourceName("worker-01.example.com"))
	assert.Equal(t, "a-b-c", NormalizeResourceName("a b/c"))

	// Normalized output is always a valid resource name
	require.True(t, ResourceName(NormalizeResourceName("pipeline: extract & load")).Valid())
}

func TestNormalizeResourceNameTruncation(t *testing.T) {
	tooLong := strings.Repeat("abcdefghijklmnopqrstuvwxyz", 4) // 104 chars
	normalized := NormalizeResourceName(tooLong)

	// Overlong names are truncated behind a random prefix so that two long
	// names differing only in their tails stay distinct.
	require.Len(t, normalized, resourceNameMaxLength)
	require.Equal(t, tooLong[:resourceNameMaxLength-prefixLen], normalized[prefixLen:])
	require.NotEqual(t, normalized, NormalizeResourceName(tooLong))
	require.True(t, ResourceName(normalized).Valid())
}
