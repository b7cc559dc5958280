package height

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wemix/headwatch/pkg/logger"
)

func TestJSONRPCProvider_GetCurrentHeight(t *testing.T) {
	tests := []struct {
		name   string
		result interface{}
		query  string
		want   uint64
	}{
		{name: "plain number", result: 500, want: 500},
		{name: "nested number", result: map[string]interface{}{"sync_info": map[string]interface{}{"latest_block_height": 812}}, query: ".sync_info.latest_block_height", want: 812},
		{name: "decimal string", result: map[string]interface{}{"height": "9000"}, query: ".height", want: 9000},
		{name: "hex string", result: "0x1b4", want: 436},
		{name: "array element", result: []interface{}{1, 2, 3}, query: "max", want: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.result
			server := newFakeRPCServer(t, map[string]rpcHandler{
				"status": func(params []json.RawMessage) (interface{}, error) { return result, nil },
			})

			provider, err := NewJSONRPCProvider(dialFake(t, server), JSONRPCOptions{Method: "status", Query: tt.query}, logger.NewTestLogger())
			require.NoError(t, err)

			height, err := provider.GetCurrentHeight(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, height)
		})
	}
}

func TestJSONRPCProvider_PassesParams(t *testing.T) {
	server := newFakeRPCServer(t, map[string]rpcHandler{
		"lc_head": func(params []json.RawMessage) (interface{}, error) { return 1, nil },
	})

	provider, err := NewJSONRPCProvider(dialFake(t, server), JSONRPCOptions{
		Method: "lc_head",
		Params: []interface{}{"client-7", true},
	}, logger.NewTestLogger())
	require.NoError(t, err)

	_, err = provider.GetCurrentHeight(context.Background())
	require.NoError(t, err)

	calls := server.calls("lc_head")
	require.Len(t, calls, 1)
	require.Len(t, calls[0].Params, 2)
	assert.JSONEq(t, `"client-7"`, string(calls[0].Params[0]))
	assert.JSONEq(t, `true`, string(calls[0].Params[1]))
}

func TestJSONRPCProvider_Failures(t *testing.T) {
	tests := []struct {
		name   string
		result interface{}
		query  string
	}{
		{name: "missing field", result: map[string]interface{}{}, query: ".height"},
		{name: "negative", result: -4},
		{name: "fraction", result: 1.5},
		{name: "boolean", result: true},
		{name: "no output", result: []interface{}{}, query: ".[]"},
		{name: "query error", result: "text", query: ".height"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.result
			server := newFakeRPCServer(t, map[string]rpcHandler{
				"status": func(params []json.RawMessage) (interface{}, error) { return result, nil },
			})

			provider, err := NewJSONRPCProvider(dialFake(t, server), JSONRPCOptions{Method: "status", Query: tt.query}, logger.NewTestLogger())
			require.NoError(t, err)

			_, err = provider.GetCurrentHeight(context.Background())
			assert.Error(t, err)
		})
	}
}

func TestNewJSONRPCProvider_Validation(t *testing.T) {
	client := dialFake(t, newFakeRPCServer(t, nil))

	_, err := NewJSONRPCProvider(client, JSONRPCOptions{}, logger.NewTestLogger())
	assert.Error(t, err)

	_, err = NewJSONRPCProvider(client, JSONRPCOptions{Method: "status", Query: ".[[["}, logger.NewTestLogger())
	assert.Error(t, err)
}

func TestToUint64(t *testing.T) {
	v, err := toUint64(big.NewInt(77))
	require.NoError(t, err)
	assert.Equal(t, uint64(77), v)

	_, err = toUint64(new(big.Int).Lsh(big.NewInt(1), 70))
	assert.Error(t, err)

	_, err = toUint64(nil)
	assert.ErrorIs(t, err, ErrNoReturnValue)

	v, err = toUint64("0X10")
	require.NoError(t, err)
	assert.Equal(t, uint64(16), v)
}
