package tools

import (
	"context"
	"log"
)

// ToolFunc defines a function executed asynchronously.
type ToolFunc func(ctx context.Context) error

// Dispatch runs the provided tool in a separate goroutine. Fire-and-forget;
// failures are logged under the given name, never propagated.
func Dispatch(ctx context.Context, name string, fn ToolFunc) {
	go func() {
		if err := fn(ctx); err != nil {
			log.Printf("[dispatch:%s] %v", name, err)
		}
	}()
}
