package height

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"github.com/wemix/headwatch/pkg/logger"
)

// Defaults for the testnet light client deployment
const (
	DefaultSuiRPCURL   = "https://fullnode.testnet.sui.io:443"
	DefaultSuiPackage  = "0xc31478c4cc6cc146a7ecfc9cc5096d4421d675bdf5577cb7e550392a7cb93dc5"
	DefaultSuiObject   = "0x4f989d395bb13b4913b483016641eb7c9cacfd88d2a1ba91523d0542a52af9e4"
	DefaultSuiModule   = "light_client"
	DefaultSuiFunction = "head_height"

	suiZeroSender = "0x0000000000000000000000000000000000000000000000000000000000000000"
)

var (
	// ErrNoReturnValue means the inspected call produced no return value
	ErrNoReturnValue = errors.New("call returned no value")

	// ErrNotShared means the target object is not a shared object
	ErrNotShared = errors.New("object is not shared")
)

// SuiOptions selects the Move function to inspect
type SuiOptions struct {
	Package  string
	Module   string
	Function string
	Object   string
}

// SuiProvider reads the head height by dev-inspecting a read-only Move call.
type SuiProvider struct {
	client *rpc.Client
	call   moveCall
	object string
	logger *logger.Logger

	// initial shared version never changes for an object; fetched once
	mu             sync.Mutex
	versionFetched bool
}

// NewSuiProvider creates a provider for <package>::<module>::<function>(<object>)
func NewSuiProvider(client *rpc.Client, opts SuiOptions, log *logger.Logger) (*SuiProvider, error) {
	if opts.Package == "" {
		opts.Package = DefaultSuiPackage
	}
	if opts.Object == "" {
		opts.Object = DefaultSuiObject
	}
	if opts.Module == "" {
		opts.Module = DefaultSuiModule
	}
	if opts.Function == "" {
		opts.Function = DefaultSuiFunction
	}

	pkg, err := parseSuiAddress(opts.Package)
	if err != nil {
		return nil, fmt.Errorf("package: %w", err)
	}
	obj, err := parseSuiAddress(opts.Object)
	if err != nil {
		return nil, fmt.Errorf("object: %w", err)
	}

	return &SuiProvider{
		client: client,
		call: moveCall{
			Package:  pkg,
			Module:   opts.Module,
			Function: opts.Function,
			Object:   obj,
		},
		object: opts.Object,
		logger: log,
	}, nil
}

// suiUint64 accepts u64 values encoded either as JSON numbers or strings
type suiUint64 uint64

func (v *suiUint64) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid u64 %s: %w", string(data), err)
	}
	*v = suiUint64(n)
	return nil
}

type suiObjectResponse struct {
	Data *struct {
		ObjectID string          `json:"objectId"`
		Owner    json.RawMessage `json:"owner"`
	} `json:"data"`
	Error json.RawMessage `json:"error"`
}

type suiDevInspectResponse struct {
	Effects struct {
		Status struct {
			Status string `json:"status"`
			Error  string `json:"error"`
		} `json:"status"`
	} `json:"effects"`
	Results []struct {
		ReturnValues [][]json.RawMessage `json:"returnValues"`
	} `json:"results"`
	Error string `json:"error"`
}

// GetCurrentHeight implements Provider
func (p *SuiProvider) GetCurrentHeight(ctx context.Context) (uint64, error) {
	if err := p.ensureSharedVersion(ctx); err != nil {
		return 0, err
	}

	txBytes := base64.StdEncoding.EncodeToString(encodeTransactionKind(p.call))

	var resp suiDevInspectResponse
	if err := p.client.CallContext(ctx, &resp, "sui_devInspectTransactionBlock", suiZeroSender, txBytes, nil, nil); err != nil {
		return 0, fmt.Errorf("devInspect failed: %w", err)
	}

	if resp.Effects.Status.Status != "success" {
		return 0, fmt.Errorf("devInspect status %q: %s%s", resp.Effects.Status.Status, resp.Effects.Status.Error, resp.Error)
	}
	if len(resp.Results) == 0 || len(resp.Results[0].ReturnValues) == 0 || len(resp.Results[0].ReturnValues[0]) == 0 {
		return 0, ErrNoReturnValue
	}

	var raw []int
	if err := json.Unmarshal(resp.Results[0].ReturnValues[0][0], &raw); err != nil {
		return 0, fmt.Errorf("failed to decode return bytes: %w", err)
	}
	bytes := make([]byte, len(raw))
	for i, b := range raw {
		if b < 0 || b > 255 {
			return 0, fmt.Errorf("return byte %d out of range: %d", i, b)
		}
		bytes[i] = byte(b)
	}

	height, err := decodeU64(bytes)
	if err != nil {
		return 0, fmt.Errorf("failed to deserialize %s: %w", p.call.Function, err)
	}
	return height, nil
}

// ensureSharedVersion looks up the object's initial shared version once
func (p *SuiProvider) ensureSharedVersion(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.versionFetched {
		return nil
	}

	var resp suiObjectResponse
	options := map[string]bool{"showOwner": true}
	if err := p.client.CallContext(ctx, &resp, "sui_getObject", p.object, options); err != nil {
		return fmt.Errorf("sui_getObject failed: %w", err)
	}
	if resp.Data == nil {
		return fmt.Errorf("object %s not found: %s", p.object, string(resp.Error))
	}

	var owner struct {
		Shared *struct {
			InitialSharedVersion suiUint64 `json:"initial_shared_version"`
		} `json:"Shared"`
	}
	if err := json.Unmarshal(resp.Data.Owner, &owner); err != nil || owner.Shared == nil {
		return fmt.Errorf("%w: %s", ErrNotShared, p.object)
	}

	p.call.InitialSharedVersion = uint64(owner.Shared.InitialSharedVersion)
	p.versionFetched = true

	p.logger.Debug("resolved shared object",
		zap.String("object", p.object),
		zap.Uint64("initial_shared_version", p.call.InitialSharedVersion))

	return nil
}

// Close closes the underlying RPC client
func (p *SuiProvider) Close() error {
	p.client.Close()
	return nil
}
