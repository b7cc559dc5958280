package height

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wemix/headwatch/pkg/logger"
)

const testContract = "0x00000000000000000000000000000000000000aa"

func ethCallReturning(hex string) rpcHandler {
	return func(params []json.RawMessage) (interface{}, error) {
		return hex, nil
	}
}

func TestEVMProvider_GetCurrentHeight(t *testing.T) {
	word := "0x" + strings.Repeat("0", 60) + "3039" // 12345
	server := newFakeRPCServer(t, map[string]rpcHandler{"eth_call": ethCallReturning(word)})

	provider, err := NewEVMProvider(dialFake(t, server), EVMOptions{Contract: testContract}, logger.NewTestLogger())
	require.NoError(t, err)

	height, err := provider.GetCurrentHeight(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(12345), height)

	calls := server.calls("eth_call")
	require.Len(t, calls, 1)

	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal(calls[0].Params[0], &msg))
	assert.Equal(t, testContract, strings.ToLower(msg["to"].(string)))

	data, ok := msg["input"].(string)
	if !ok {
		data, _ = msg["data"].(string)
	}
	assert.Equal(t, hexutil.Encode(provider.selector), data)
}

func TestEVMProvider_Failures(t *testing.T) {
	tests := []struct {
		name   string
		result string
	}{
		{name: "empty result", result: "0x"},
		{name: "overflow", result: "0x" + strings.Repeat("f", 64)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newFakeRPCServer(t, map[string]rpcHandler{"eth_call": ethCallReturning(tt.result)})
			provider, err := NewEVMProvider(dialFake(t, server), EVMOptions{Contract: testContract}, logger.NewTestLogger())
			require.NoError(t, err)

			_, err = provider.GetCurrentHeight(context.Background())
			assert.Error(t, err)
		})
	}
}

func TestNewEVMProvider_Selector(t *testing.T) {
	server := newFakeRPCServer(t, nil)
	client := dialFake(t, server)

	// keccak256("totalSupply()")[:4]
	provider, err := NewEVMProvider(client, EVMOptions{Contract: testContract, Method: "totalSupply()"}, logger.NewTestLogger())
	require.NoError(t, err)
	assert.Equal(t, "0x18160ddd", hexutil.Encode(provider.selector))

	_, err = NewEVMProvider(client, EVMOptions{Contract: "not-an-address"}, logger.NewTestLogger())
	assert.Error(t, err)
}
