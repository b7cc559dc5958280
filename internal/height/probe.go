package height

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"github.com/wemix/headwatch/pkg/logger"
)

// Probe kinds accepted by NewProvider
const (
	KindSui     = "sui"
	KindEVM     = "evm"
	KindJSONRPC = "jsonrpc"
)

// DefaultTimeout bounds a single probe
const DefaultTimeout = 15 * time.Second

// Options selects and configures a Provider
type Options struct {
	Kind    string
	RPCURL  string
	Headers map[string]string
	Timeout time.Duration

	Sui     SuiOptions
	EVM     EVMOptions
	JSONRPC JSONRPCOptions
}

// NewProvider builds the provider selected by opts.Kind
func NewProvider(ctx context.Context, opts Options, log *logger.Logger) (Provider, error) {
	if opts.RPCURL == "" {
		return nil, fmt.Errorf("probe rpc url is required")
	}

	client, err := dial(ctx, opts)
	if err != nil {
		return nil, err
	}

	var p Provider
	switch opts.Kind {
	case "", KindSui:
		p, err = NewSuiProvider(client, opts.Sui, log)
	case KindEVM:
		p, err = NewEVMProvider(client, opts.EVM, log)
	case KindJSONRPC:
		p, err = NewJSONRPCProvider(client, opts.JSONRPC, log)
	default:
		err = fmt.Errorf("unknown probe kind: %s", opts.Kind)
	}
	if err != nil {
		client.Close()
		return nil, err
	}
	return p, nil
}

func dial(ctx context.Context, opts Options) (*rpc.Client, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	client, err := rpc.DialOptions(ctx, opts.RPCURL,
		rpc.WithHTTPClient(&http.Client{Timeout: timeout}))
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", opts.RPCURL, err)
	}

	for key, value := range opts.Headers {
		client.SetHeader(key, value)
	}

	return client, nil
}

// Fetch queries p once within timeout. Any failure, including a panic inside
// the provider, is logged and reported as nil.
func Fetch(ctx context.Context, p Provider, timeout time.Duration, log *logger.Logger) (height *uint64) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			log.Error("height provider panicked", zap.Any("panic", r))
			height = nil
		}
	}()

	start := time.Now()
	h, err := p.GetCurrentHeight(ctx)
	if err != nil {
		log.Error("failed to fetch head height",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil
	}

	log.Debug("fetched head height",
		zap.Uint64("height", h),
		zap.Duration("elapsed", time.Since(start)))
	return &h
}

// Close releases p if it holds resources
func Close(p Provider) error {
	if c, ok := p.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
