package manifold

import "context"

// Initializer defines an optional interface for stages that require a setup
// step before they start processing data, such as opening a connection or
// loading initial state. Registry.Setup invokes Setup once per implementing
// stage before pipelines run; stages may instead initialize themselves
// lazily on first use.
type Initializer interface {
	Setup(ctx context.Context) error
}

// Closer defines an optional interface for stages that need to release
// resources when the registry holding them shuts down. Registry.Close calls
// Close once per implementing stage, in reverse registration order.
type Closer interface {
	Close(ctx context.Context) error
}
