package quota

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	apperrors "vidloader/internal/errors"
	"vidloader/internal/files"
)

const lockRetryDelay = 25 * time.Millisecond

// acquireLock takes the sidecar lock within timeout and returns its release
// function.
func acquireLock(ctx context.Context, lockPath string, exclusive bool, timeout time.Duration) (func(), error) {
	if err := files.EnsureDir(filepath.Dir(lockPath)); err != nil {
		return nil, apperrors.IOError("lock quota", err)
	}

	fl := flock.New(lockPath)

	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		ok  bool
		err error
	)
	if exclusive {
		ok, err = fl.TryLockContext(lockCtx, lockRetryDelay)
	} else {
		ok, err = fl.TryRLockContext(lockCtx, lockRetryDelay)
	}

	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		_ = fl.Close()
		if ctx.Err() != nil {
			return nil, apperrors.IOError("lock quota", ctx.Err())
		}
		return nil, apperrors.IOError("lock quota", err)
	}
	if !ok {
		_ = fl.Close()
		return nil, apperrors.NewEntitlementError(apperrors.KindIO, "lock quota",
			fmt.Errorf("%w after %s", apperrors.ErrLockTimeout, timeout))
	}

	return func() {
		_ = fl.Unlock()
	}, nil
}
