package height

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/itchyny/gojq"

	"github.com/wemix/headwatch/pkg/logger"
)

// JSONRPCOptions describes an arbitrary JSON-RPC call whose result holds the height
type JSONRPCOptions struct {
	Method string
	Params []interface{}
	// Query is a jq expression selecting the height from the result, "." by default
	Query string
}

// JSONRPCProvider calls any JSON-RPC method and extracts the height with jq.
type JSONRPCProvider struct {
	client *rpc.Client
	method string
	params []interface{}
	query  *gojq.Code
	logger *logger.Logger
}

// NewJSONRPCProvider compiles the query and creates the provider
func NewJSONRPCProvider(client *rpc.Client, opts JSONRPCOptions, log *logger.Logger) (*JSONRPCProvider, error) {
	if opts.Method == "" {
		return nil, fmt.Errorf("jsonrpc probe requires a method")
	}
	queryStr := opts.Query
	if queryStr == "" {
		queryStr = "."
	}

	query, err := gojq.Parse(queryStr)
	if err != nil {
		return nil, fmt.Errorf("could not parse height query '%v': %w", queryStr, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("could not compile height query '%v': %w", queryStr, err)
	}

	return &JSONRPCProvider{
		client: client,
		method: opts.Method,
		params: opts.Params,
		query:  code,
		logger: log,
	}, nil
}

// GetCurrentHeight implements Provider
func (p *JSONRPCProvider) GetCurrentHeight(ctx context.Context) (uint64, error) {
	var raw json.RawMessage
	if err := p.client.CallContext(ctx, &raw, p.method, p.params...); err != nil {
		return 0, fmt.Errorf("%s failed: %w", p.method, err)
	}

	var result interface{}
	if err := json.Unmarshal(raw, &result); err != nil {
		return 0, fmt.Errorf("failed to decode %s result: %w", p.method, err)
	}

	iter := p.query.RunWithContext(ctx, result)
	val, ok := iter.Next()
	if !ok {
		return 0, ErrNoReturnValue
	}
	if err, isErr := val.(error); isErr {
		return 0, fmt.Errorf("height query failed: %w", err)
	}

	return toUint64(val)
}

// toUint64 converts a jq result into a height
func toUint64(val interface{}) (uint64, error) {
	switch v := val.(type) {
	case int:
		if v < 0 {
			return 0, fmt.Errorf("negative height %d", v)
		}
		return uint64(v), nil
	case float64:
		if v < 0 || v != math.Trunc(v) || v >= math.MaxUint64 {
			return 0, fmt.Errorf("height %v is not an unsigned integer", v)
		}
		return uint64(v), nil
	case *big.Int:
		if !v.IsUint64() {
			return 0, fmt.Errorf("height %s out of range", v.String())
		}
		return v.Uint64(), nil
	case string:
		s := strings.TrimSpace(v)
		if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
			n, err := strconv.ParseUint(s[2:], 16, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid hex height %q: %w", v, err)
			}
			return n, nil
		}
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid height %q: %w", v, err)
		}
		return n, nil
	case nil:
		return 0, ErrNoReturnValue
	default:
		return 0, fmt.Errorf("unsupported height type %T", val)
	}
}

// Close closes the underlying RPC client
func (p *JSONRPCProvider) Close() error {
	p.client.Close()
	return nil
}
