// Package transfer talks to the remote processing service.
package transfer

import (
	"context"
	"errors"

	"github.com/moyoez/submitsession/types"
)

// ErrRemoteRejected is returned when the service answers with success=false.
var ErrRemoteRejected = errors.New("remote rejected request")

// Processor sends one request to the processing service.
// onProgress receives integer percentages for file uploads and may be nil.
type Processor interface {
	Process(ctx context.Context, req types.RemoteRequest, onProgress func(int)) (types.RemoteResponse, error)
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, req types.RemoteRequest, onProgress func(int)) (types.RemoteResponse, error)

func (f ProcessorFunc) Process(ctx context.Context, req types.RemoteRequest, onProgress func(int)) (types.RemoteResponse, error) {
	return f(ctx, req, onProgress)
}
