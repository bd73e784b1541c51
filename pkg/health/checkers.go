package health

import (
	"context"
	"runtime"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck fails when more than threshold goroutines are running,
// which usually means handlers are leaking.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", n, threshold)
		}
		return nil
	}
}

// PingCheck adapts a context-free ping, such as an embedded database's, to a
// CheckFunc.
func PingCheck(ping func() error) CheckFunc {
	return func(context.Context) error {
		return ping()
	}
}
