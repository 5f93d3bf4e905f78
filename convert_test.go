package nextcloud

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeMarshalsAsEpochMillis(t *testing.T) {
	when := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	data, err := json.Marshal(NewTime(when))
	require.NoError(t, err)
	assert.Equal(t, "1714564800000", string(data))

	data, err = json.Marshal(Time{})
	require.NoError(t, err)
	assert.Equal(t, "0", string(data))
}

func TestTimeUnmarshal(t *testing.T) {
	var tm Time
	require.NoError(t, json.Unmarshal([]byte("1714564800000"), &tm))
	assert.Equal(t, int64(1714564800), tm.Unix())

	require.NoError(t, json.Unmarshal([]byte("0"), &tm))
	assert.True(t, tm.IsZero())

	require.NoError(t, json.Unmarshal([]byte("null"), &tm))
	assert.True(t, tm.IsZero())

	require.NoError(t, json.Unmarshal([]byte(`"2024-05-01T12:00:00Z"`), &tm))
	assert.Equal(t, int64(1714564800), tm.Unix())

	assert.Error(t, json.Unmarshal([]byte(`"not a date"`), &tm))
}

func TestDecodeEpochMillisIntoTime(t *testing.T) {
	type record struct {
		LastLogin time.Time `json:"lastLogin"`
	}
	got, err := Decode[record](map[string]any{"lastLogin": float64(1714564800000)})
	require.NoError(t, err)
	assert.Equal(t, int64(1714564800), got.LastLogin.Unix())

	got, err = Decode[record](map[string]any{"lastLogin": float64(0)})
	require.NoError(t, err)
	assert.True(t, got.LastLogin.IsZero())
}

func TestDecodeDateStringIntoTime(t *testing.T) {
	type record struct {
		Modified time.Time `json:"getlastmodified"`
	}
	got, err := Decode[record](map[string]any{"getlastmodified": "Mon, 04 Mar 2024 10:00:00 GMT"})
	require.NoError(t, err)
	assert.Equal(t, 2024, got.Modified.Year())
	assert.Equal(t, time.March, got.Modified.Month())
}

func TestDecodeWeaklyTyped(t *testing.T) {
	type record struct {
		Count   int    `json:"count"`
		Size    int64  `json:"size"`
		Name    string `json:"name"`
		Enabled bool   `json:"enabled"`
	}
	got, err := Decode[record](map[string]any{
		"count":   "5",
		"size":    float64(117),
		"name":    "n",
		"enabled": "1",
	})
	require.NoError(t, err)
	assert.Equal(t, record{Count: 5, Size: 117, Name: "n", Enabled: true}, got)
}

func TestDecodeScalar(t *testing.T) {
	got, err := Decode[string]("alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", got)
}

func TestDecodeSlice(t *testing.T) {
	got, err := DecodeSlice[string]([]any{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)

	_, err = DecodeSlice[int]([]any{"nope", map[string]any{}})
	assert.Error(t, err)
}

func TestDecodeNestedStruct(t *testing.T) {
	type quota struct {
		Free int64 `json:"free"`
		Used int64 `json:"used"`
	}
	type account struct {
		ID    string `json:"id"`
		Quota quota  `json:"quota"`
	}
	got, err := Decode[account](map[string]any{
		"id":    "alice",
		"quota": map[string]any{"free": float64(100), "used": float64(40)},
	})
	require.NoError(t, err)
	assert.Equal(t, account{ID: "alice", Quota: quota{Free: 100, Used: 40}}, got)
}
