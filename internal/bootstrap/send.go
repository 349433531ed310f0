package bootstrap

import (
	"context"
	"sync/atomic"
	"time"

	"minhton/internal/logger"
	"minhton/internal/mdomain"
	"minhton/internal/transport/grpctransport"
)

// eventIDs mints the event ids this package stamps on outbound
// BootstrapDiscover messages. It is intentionally separate from
// mnode's internal idGenerator: discovery happens before the joining
// node has any correlated procedure state, so a self-contained counter
// is enough to make every discovery attempt's header well-formed.
type eventIDs struct{ next uint64 }

func (g *eventIDs) next_() uint64 { return atomic.AddUint64(&g.next, 1) }

// Sender fans a BootstrapDiscover payload out to every address a
// Discoverer resolves, via the same grpctransport.Client a running
// node uses for ordinary protocol traffic.
type Sender struct {
	disc   Discoverer
	client *grpctransport.Client
	self   mdomain.NodeRef
	ids    eventIDs
	lgr    logger.Logger
}

// NewSender binds a Discoverer and transport client to self's identity.
func NewSender(disc Discoverer, client *grpctransport.Client, self mdomain.NodeRef, lgr logger.Logger) *Sender {
	if lgr == nil {
		lgr = &logger.NopLogger{}
	}
	return &Sender{disc: disc, client: client, self: self, lgr: lgr}
}

// Send implements the func(mdomain.BootstrapDiscover) error signature
// mnode.WithDiscover expects: resolve candidates, then best-effort
// Send to each (a candidate that never answers simply times out the
// requester's TimeoutBootstrapResponse, per spec.md §4.4).
func (s *Sender) Send(payload mdomain.BootstrapDiscover) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	peers, err := s.disc.Discover(ctx)
	if err != nil {
		return err
	}
	s.lgr.Info("resolved bootstrap candidates", logger.F("count", len(peers)))

	evID := s.ids.next_()
	for _, addr := range peers {
		target := mdomain.NodeRef{Physical: addr}
		h := mdomain.Header{Sender: s.self, Target: target, Type: mdomain.MsgBootstrapDiscover, EventID: evID}
		if err := s.client.Send(ctx, target, h, payload); err != nil {
			s.lgr.Warn("bootstrap discover send failed", logger.F("addr", addr.String()), logger.F("err", err))
		}
	}
	return nil
}
