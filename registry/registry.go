package registry

import (
	"log/slog"
	"sync"

	"github.com/delmic/odemis-sub003/errors"
	"github.com/delmic/odemis-sub003/remote"
)

// Kind distinguishes the two exportable surfaces.
type Kind int

const (
	// KindCell is an exported attribute cell.
	KindCell Kind = iota
	// KindStream is an exported data stream channel.
	KindStream
)

// String returns the string representation of Kind
func (k Kind) String() string {
	switch k {
	case KindCell:
		return "cell"
	case KindStream:
		return "stream"
	default:
		return "unknown"
	}
}

// Export describes one exported cell or stream: the name remote peers
// resolve it by, and the transport channel its notifications flow on.
type Export struct {
	Name      string           `json:"name"`
	Kind      Kind             `json:"kind"`
	ChannelID remote.ChannelID `json:"channel_id"`
}

// Exportable is the registry's view of a cell or stream: anything that can
// broadcast its notifications onto a transport channel.
type Exportable interface {
	SubscribeRemote(channelID remote.ChannelID) error
	UnsubscribeRemote(channelID remote.ChannelID)
}

// Registry maps names to exported cells and streams and hands out the
// channel identifiers remote observers subscribe on. Construct one per
// served component set; there is deliberately no package-level instance.
type Registry struct {
	transport remote.Transport
	logger    *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool
}

type entry struct {
	export Export
	target Exportable
}

// Option configures a registry.
type Option func(*Registry)

// WithRegistryLogger sets the registry logger. Defaults to slog.Default().
func WithRegistryLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates a registry serving exports over the given transport.
func New(transport remote.Transport, opts ...Option) (*Registry, error) {
	// Nil transport is a programming error (fatal), not invalid input
	if transport == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig,
			"Registry", "New", "transport validation")
	}

	r := &Registry{
		transport: transport,
		logger:    slog.Default(),
		entries:   make(map[string]*entry),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

// ExportCell publishes a cell under name. Every notification of the cell is
// broadcast on the returned export's channel until Unexport or Close.
func (r *Registry) ExportCell(name string, cell Exportable) (Export, error) {
	return r.export(KindCell, name, cell)
}

// ExportStream publishes a stream channel under name. The export counts as
// a remote subscriber, so it starts the stream's producer.
func (r *Registry) ExportStream(name string, stream Exportable) (Export, error) {
	return r.export(KindStream, name, stream)
}

func (r *Registry) export(kind Kind, name string, target Exportable) (Export, error) {
	if target == nil {
		return Export{}, errors.WrapFatal(errors.ErrMissingConfig,
			"Registry", "Export", "target validation")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return Export{}, errors.WrapInvalid(errors.ErrAlreadyStopped,
			"Registry", "Export", "registry closed")
	}
	if _, exists := r.entries[name]; exists {
		return Export{}, errors.WrapInvalid(errors.ErrAlreadyRegistered,
			"Registry", "Export", name)
	}

	export := Export{
		Name:      name,
		Kind:      kind,
		ChannelID: remote.NewChannelID(),
	}
	if err := target.SubscribeRemote(export.ChannelID); err != nil {
		return Export{}, errors.Wrap(err, "Registry", "Export", name)
	}
	r.entries[name] = &entry{export: export, target: target}

	r.logger.Info("exported",
		slog.String("name", name),
		slog.String("kind", kind.String()),
		slog.String("channel", export.ChannelID.String()))
	return export, nil
}

// Resolve returns the export registered under name.
func (r *Registry) Resolve(name string) (Export, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[name]
	if !ok {
		return Export{}, errors.WrapInvalid(errors.ErrNotRegistered,
			"Registry", "Resolve", name)
	}
	return e.export, nil
}

// Exports returns a snapshot of every registered export.
func (r *Registry) Exports() []Export {
	r.mu.Lock()
	defer r.mu.Unlock()

	exports := make([]Export, 0, len(r.entries))
	for _, e := range r.entries {
		exports = append(exports, e.export)
	}
	return exports
}

// Unexport withdraws the export registered under name. The target stops
// broadcasting on the export's channel; for a stream, this counts as a
// remote unsubscribe and may stop its producer.
func (r *Registry) Unexport(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[name]
	if !ok {
		return errors.WrapInvalid(errors.ErrNotRegistered,
			"Registry", "Unexport", name)
	}
	delete(r.entries, name)
	e.target.UnsubscribeRemote(e.export.ChannelID)
	return nil
}

// Close withdraws every export and rejects further registration. Idempotent.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	for name, e := range r.entries {
		delete(r.entries, name)
		e.target.UnsubscribeRemote(e.export.ChannelID)
	}
	return nil
}
