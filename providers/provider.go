// Package providers defines the common adapter contract every upstream
// implements (spec §4.9), generalizing the donor's llm.Provider interface
// (llm/provider.go) to the gateway's canonical request/response shape.
package providers

import (
	"context"

	"github.com/nullroute-dev/llmgateway/canonical"
	"github.com/nullroute-dev/llmgateway/internal/credential"
)

// Adapter is the contract every upstream provider implements. Adapters must
// never mutate the canonical request, must propagate fatal upstream HTTP
// errors via the uniform error taxonomy, must close upstream connections on
// cancellation, and must produce canonical SSE lines terminated by
// `data: [DONE]\n\n` unless cancelled (spec §4.9).
type Adapter interface {
	Name() string
	Complete(ctx context.Context, req *canonical.Request, cred *credential.Credential) (*canonical.Response, error)
	Stream(ctx context.Context, req *canonical.Request, cred *credential.Credential) (<-chan StreamEvent, error)
	ListModels(ctx context.Context, cred *credential.Credential) ([]canonical.Model, error)
}

// StreamEvent is one item from an adapter's stream: a chunk, a terminal
// error, a raw SSE comment (keepalive pings), or the terminal signal.
// Exactly one of Chunk/Err/Comment/Done is meaningful.
type StreamEvent struct {
	Chunk   *canonical.StreamChunk
	Err     error
	Comment string
	Done    bool
}
