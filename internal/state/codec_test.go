package state

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wemix/headwatch/internal/escalation"
)

var defaultNames = []string{"min20", "min30", "min60"}

func TestCodec_RoundTrip(t *testing.T) {
	codec := NewCodec(defaultNames)
	in := escalation.MonitorState{
		LastKnownHeight: 123456,
		LastUpdatedAt:   time.Unix(1_700_000_000, 0),
		AlertsSent:      escalation.NewAlertSet("min20", "min30"),
	}

	data, err := codec.Encode(in)
	require.NoError(t, err)

	out, err := codec.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, in.LastKnownHeight, out.LastKnownHeight)
	assert.True(t, in.LastUpdatedAt.Equal(out.LastUpdatedAt))
	assert.Equal(t, []string{"min20", "min30"}, out.AlertsSent.Names())
}

func TestCodec_EncodeLayout(t *testing.T) {
	codec := NewCodec(defaultNames)

	data, err := codec.Encode(escalation.DefaultState())
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, float64(0), raw["lastKnownHeight"])
	assert.Nil(t, raw["lastUpdatedAt"])
	assert.Equal(t, map[string]interface{}{"min20": false, "min30": false, "min60": false}, raw["alertsSent"])
}

func TestCodec_DecodeLegacyFile(t *testing.T) {
	legacy := []byte(`{
  "lastKnownHeight": 4521,
  "lastUpdatedAt": 1718000000,
  "alertsSent": {
    "min20": true,
    "min30": false,
    "min60": false
  }
}`)

	s, err := NewCodec(defaultNames).Decode(legacy)
	require.NoError(t, err)
	assert.Equal(t, uint64(4521), s.LastKnownHeight)
	assert.Equal(t, int64(1718000000), s.LastUpdatedAt.Unix())
	assert.Equal(t, []string{"min20"}, s.AlertsSent.Names())
}

func TestCodec_NewThresholdKeepsHistory(t *testing.T) {
	// Written before min120 existed
	old := []byte(`{"lastKnownHeight": 10, "lastUpdatedAt": 100, "alertsSent": {"min20": true, "min30": true, "min60": false}}`)

	codec := NewCodec(append(defaultNames, "min120"))
	s, err := codec.Decode(old)
	require.NoError(t, err)
	assert.Equal(t, []string{"min20", "min30"}, s.AlertsSent.Names())
	assert.False(t, s.AlertsSent.Has("min120"))

	data, err := codec.Encode(s)
	require.NoError(t, err)

	var rec record
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, map[string]bool{"min20": true, "min30": true, "min60": false, "min120": false}, rec.AlertsSent)
}

func TestCodec_RemovedThresholdStillEncoded(t *testing.T) {
	codec := NewCodec([]string{"min20"})
	s := escalation.MonitorState{
		LastKnownHeight: 1,
		LastUpdatedAt:   time.Unix(100, 0),
		AlertsSent:      escalation.NewAlertSet("retired"),
	}

	data, err := codec.Encode(s)
	require.NoError(t, err)

	var rec record
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, map[string]bool{"min20": false, "retired": true}, rec.AlertsSent)
}

func TestCodec_MissingAlertsSent(t *testing.T) {
	s, err := NewCodec(defaultNames).Decode([]byte(`{"lastKnownHeight": 5, "lastUpdatedAt": null}`))
	require.NoError(t, err)
	assert.Equal(t, uint64(5), s.LastKnownHeight)
	assert.False(t, s.HasUpdate())
	assert.NotNil(t, s.AlertsSent)
	assert.Equal(t, 0, s.AlertsSent.Len())
}

func TestCodec_SetThresholds(t *testing.T) {
	codec := NewCodec(defaultNames)
	s := escalation.MonitorState{
		LastKnownHeight: 9,
		LastUpdatedAt:   time.Unix(1_700_000_000, 0),
		AlertsSent:      escalation.NewAlertSet("min20"),
	}

	codec.SetThresholds(append(escalation.DefaultThresholds(), escalation.Threshold{Name: "min120", StallMinutes: 120}))
	data, err := codec.Encode(s)
	require.NoError(t, err)

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, map[string]interface{}{
		"min20":  true,
		"min30":  false,
		"min60":  false,
		"min120": false,
	}, rec["alertsSent"])
}

func TestCodec_Corrupt(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "empty", data: ""},
		{name: "garbage", data: "not json"},
		{name: "truncated", data: `{"lastKnownHeight": 5, "alertsSent": {`},
		{name: "negative height", data: `{"lastKnownHeight": -5}`},
		{name: "missing height", data: `{"lastUpdatedAt": 10}`},
		{name: "wrong alert type", data: `{"lastKnownHeight": 5, "alertsSent": {"min20": "yes"}}`},
		{name: "alerts without timestamp", data: `{"lastKnownHeight": 5, "lastUpdatedAt": null, "alertsSent": {"min20": true}}`},
		{name: "trailing garbage", data: `{"lastKnownHeight": 100, "lastUpdatedAt": 10, "alertsSent": {}} garbage`},
		{name: "second record", data: `{"lastKnownHeight": 100} {"lastKnownHeight": 5}`},
	}

	codec := NewCodec(defaultNames)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Decode([]byte(tt.data))
			assert.ErrorIs(t, err, ErrCorrupt)
		})
	}

	// surrounding whitespace is not corruption
	s, err := codec.Decode([]byte("  {\"lastKnownHeight\": 7}\n\n"))
	require.NoError(t, err)
	assert.Equal(t, uint64(7), s.LastKnownHeight)
}
