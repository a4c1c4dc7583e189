package rpcstack

import (
	"github.com/wippyai/rpc-stack/errors"
	"github.com/wippyai/rpc-stack/internal/layout"
	"go.uber.org/zap"
)

// Builder assembles a channel stack without manual buffer management. It
// validates the filter list up front and returns errors where the raw
// InitChannelStack path panics.
type Builder struct {
	filters []Filter
	cfg     *ChannelArgs
	meta    any
	logger  *zap.Logger
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Append adds filters to the pipeline in application-to-transport order.
func (b *Builder) Append(filters ...Filter) *Builder {
	b.filters = append(b.filters, filters...)
	return b
}

// WithArgs sets the channel configuration handed to every channel init
// hook.
func (b *Builder) WithArgs(cfg *ChannelArgs) *Builder {
	b.cfg = cfg
	return b
}

// WithMetadata sets the opaque metadata handed to every channel init
// hook.
func (b *Builder) WithMetadata(meta any) *Builder {
	b.meta = meta
	return b
}

// WithLogger sets the stack logger. Nil disables logging.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// Build validates the pipeline, allocates the channel buffer, and
// initializes the stack. The builder may be reused afterward.
func (b *Builder) Build() (*ChannelStack, error) {
	if len(b.filters) == 0 {
		return nil, errors.EmptyStack()
	}
	if err := validateFilters(b.filters); err != nil {
		return nil, err
	}
	buf := make([]byte, ChannelStackSize(b.filters))
	return InitChannelStack(buf, b.filters, b.cfg, b.meta, b.logger), nil
}

// validateFilters mirrors the layout computation with errors in place of
// panics so Build can reject a bad filter list before touching memory.
func validateFilters(filters []Filter) error {
	chanTbl, okc := layout.SafeMul(len(filters), layout.ChannelElemSize)
	callTbl, okl := layout.SafeMul(len(filters), layout.CallElemSize)
	if !okc || !okl || chanTbl > layout.MaxStackSize || callTbl > layout.MaxStackSize {
		return errors.New(errors.PhaseBuild, errors.KindSizeCap).
			Detail("%d filters exceed the element table size cap", len(filters)).
			Build()
	}

	chanTotal := layout.AlignUp(layout.ChannelHeaderSize, layout.MaxAlign) +
		layout.AlignUp(chanTbl, layout.MaxAlign)
	callTotal := layout.AlignUp(layout.CallHeaderSize, layout.MaxAlign) +
		layout.AlignUp(callTbl, layout.MaxAlign)

	for i, f := range filters {
		if f == nil {
			return errors.NilFilter(i)
		}
		name := f.Name()

		ds := f.ChannelDataSize()
		if ds < 0 {
			return errors.InvalidSize(i, name, "channel", ds)
		}
		if ds > layout.MaxStackSize {
			return errors.SizeCap(i, name, ds)
		}
		sum, ok := layout.SafeAdd(chanTotal, layout.AlignUp(ds, layout.MaxAlign))
		if !ok || sum > layout.MaxStackSize {
			return errors.SizeCap(i, name, ds)
		}
		chanTotal = sum

		cds := f.CallDataSize()
		if cds < 0 {
			return errors.InvalidSize(i, name, "call", cds)
		}
		if cds > layout.MaxStackSize {
			return errors.SizeCap(i, name, cds)
		}
		sum, ok = layout.SafeAdd(callTotal, layout.AlignUp(cds, layout.MaxAlign))
		if !ok || sum > layout.MaxStackSize {
			return errors.SizeCap(i, name, cds)
		}
		callTotal = sum
	}
	return nil
}
