package notifier

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stormguard/stormguard/internal/types"
)

// ErrUnknownScheme is returned for recipient ids no transport handles
var ErrUnknownScheme = errors.New("no transport for recipient")

// Sink delivers a message to one recipient
type Sink interface {
	Send(ctx context.Context, to types.Recipient, msg types.Message) error
}

// Directory turns a stored recipient id into a deliverable recipient
type Directory interface {
	Resolve(ctx context.Context, id string) (types.Recipient, bool)
}

// Transport is a delivery backend that can also resolve its own addresses
type Transport interface {
	Sink
	Directory
	Name() string
}

// Router dispatches recipient ids of the form "scheme:address" to transports.
// Ids without a scheme go to the default transport.
type Router struct {
	transports map[string]Transport
	fallback   string
}

// NewRouter creates a router whose default scheme is fallback
func NewRouter(fallback string, transports ...Transport) *Router {
	r := &Router{
		transports: make(map[string]Transport, len(transports)),
		fallback:   fallback,
	}
	for _, t := range transports {
		r.transports[t.Name()] = t
	}
	return r
}

func (r *Router) split(id string) (Transport, string, bool) {
	scheme, addr := r.fallback, id
	if i := strings.Index(id, ":"); i > 0 {
		if _, ok := r.transports[id[:i]]; ok {
			scheme, addr = id[:i], id[i+1:]
		}
	}
	t, ok := r.transports[scheme]
	return t, addr, ok
}

// Resolve implements Directory
func (r *Router) Resolve(ctx context.Context, id string) (types.Recipient, bool) {
	t, addr, ok := r.split(id)
	if !ok {
		return types.Recipient{}, false
	}
	rec, ok := t.Resolve(ctx, addr)
	if !ok {
		return types.Recipient{}, false
	}
	rec.ID = id
	return rec, true
}

// Send implements Sink
func (r *Router) Send(ctx context.Context, to types.Recipient, msg types.Message) error {
	t, addr, ok := r.split(to.ID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownScheme, to.ID)
	}
	return t.Send(ctx, types.Recipient{ID: addr, DisplayName: to.DisplayName}, msg)
}
