package httpapi

import "context"

// baseCtx is the daemon's lifetime context. Handlers derive from it so a
// shutdown signal also cancels work started over HTTP, such as an in-flight
// service restart.
var baseCtx = context.Background()

// SetBaseContext installs the daemon's lifetime context. A nil ctx resets
// to Background.
func SetBaseContext(ctx context.Context) {
	if ctx == nil {
		baseCtx = context.Background()
		return
	}
	baseCtx = ctx
}

// joinContexts derives a context that ends as soon as either parent does.
// The cancel func must be called when the handler returns to release the
// watcher goroutine.
func joinContexts(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		defer cancel()
		select {
		case <-a.Done():
		case <-b.Done():
		}
	}()
	return ctx, cancel
}
