package adapters

import (
	"context"
)

// ContractAdapter is one generation backend.
type ContractAdapter interface {
	Name() string
	// HasModel reports whether model ("" = adapter default) can be served.
	HasModel(model string) bool
	// Process streams text deltas through emit in order. A non-nil error
	// from emit stops the stream and is returned in ContractResponse.Error.
	Process(
		ctx context.Context,
		input ContractInput,
		emit func(ContractResponseDelta) error,
	) ContractResponse
}

// Counter numbers the deltas of one Process call.
type Counter struct {
	n uint
}

func (c *Counter) Next() uint {
	i := c.n
	c.n++
	return i
}

func (c *Counter) Count() uint { return c.n }
