package keys

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParamsFingerprintStableAcrossKeyOrder(t *testing.T) {
	key1, err := ParamsFingerprint(map[string]any{"a": 1, "b": 2})
	require.NoError(t, err)

	key2, err := ParamsFingerprint(map[string]any{"b": 2, "a": 1})
	require.NoError(t, err)

	require.Equal(t, key1, key2)
}

func TestParamsFingerprintSensitiveToValues(t *testing.T) {
	key1, err := ParamsFingerprint(map[string]any{"user": "user:anne", "object": "document:1"})
	require.NoError(t, err)

	key2, err := ParamsFingerprint(map[string]any{"user": "user:anne", "object": "document:2"})
	require.NoError(t, err)

	require.NotEqual(t, key1, key2)
}

func TestParamsFingerprintSensitiveToKeys(t *testing.T) {
	key1, err := ParamsFingerprint(map[string]any{"a": "x"})
	require.NoError(t, err)

	key2, err := ParamsFingerprint(map[string]any{"b": "x"})
	require.NoError(t, err)

	require.NotEqual(t, key1, key2)
}

func TestParamsFingerprintEmpty(t *testing.T) {
	key1, err := ParamsFingerprint(nil)
	require.NoError(t, err)

	key2, err := ParamsFingerprint(map[string]any{})
	require.NoError(t, err)

	require.Equal(t, key1, key2)
}

func TestParamsFingerprintNestedValues(t *testing.T) {
	key1, err := ParamsFingerprint(map[string]any{
		"tuples": []map[string]string{{"user": "user:anne", "relation": "reader", "object": "document:1"}},
	})
	require.NoError(t, err)

	key2, err := ParamsFingerprint(map[string]any{
		"tuples": []map[string]string{{"user": "user:anne", "relation": "reader", "object": "document:2"}},
	})
	require.NoError(t, err)

	require.NotEqual(t, key1, key2)
}
