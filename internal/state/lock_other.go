//go:build !unix

package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
)

// acquireLock emulates an exclusive lock with an O_EXCL lock file
func acquireLock(ctx context.Context, path string) (func() error, error) {
	ticker := time.NewTicker(lockRetryInterval)
	defer ticker.Stop()

	for {
		file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			file.Close()
			return func() error { return os.Remove(path) }, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("lock %s busy: %w", path, ctx.Err())
		case <-ticker.C:
		}
	}
}
