package height

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"

	"github.com/wemix/headwatch/pkg/logger"
)

// DefaultEVMMethod is the view function called when none is configured
const DefaultEVMMethod = "headHeight()"

// EVMOptions selects the contract view function returning the height
type EVMOptions struct {
	Contract string
	// Method is a Solidity signature such as "latestHeight()"
	Method string
}

// EVMProvider reads the head height from a light client contract with eth_call.
type EVMProvider struct {
	client   *ethclient.Client
	contract common.Address
	selector []byte
	logger   *logger.Logger
}

// NewEVMProvider creates a provider calling opts.Method on opts.Contract
func NewEVMProvider(client *rpc.Client, opts EVMOptions, log *logger.Logger) (*EVMProvider, error) {
	if !common.IsHexAddress(opts.Contract) {
		return nil, fmt.Errorf("invalid contract address %q", opts.Contract)
	}
	method := opts.Method
	if method == "" {
		method = DefaultEVMMethod
	}

	return &EVMProvider{
		client:   ethclient.NewClient(client),
		contract: common.HexToAddress(opts.Contract),
		selector: crypto.Keccak256([]byte(method))[:4],
		logger:   log,
	}, nil
}

// GetCurrentHeight implements Provider
func (p *EVMProvider) GetCurrentHeight(ctx context.Context) (uint64, error) {
	out, err := p.client.CallContract(ctx, ethereum.CallMsg{
		To:   &p.contract,
		Data: p.selector,
	}, nil)
	if err != nil {
		return 0, fmt.Errorf("eth_call failed: %w", err)
	}
	if len(out) < 32 {
		return 0, fmt.Errorf("%w: got %d bytes", ErrNoReturnValue, len(out))
	}

	value := new(uint256.Int).SetBytes(out[:32])
	if !value.IsUint64() {
		return 0, fmt.Errorf("height %s overflows uint64", value.Dec())
	}
	return value.Uint64(), nil
}

// Close closes the underlying RPC client
func (p *EVMProvider) Close() error {
	p.client.Close()
	return nil
}
