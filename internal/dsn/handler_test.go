package dsn

import (
	"testing"

	"minhton/internal/mdomain"
	"minhton/internal/position"
)

func mustTopo(t *testing.T, fanout uint16) position.Topology {
	t.Helper()
	topo, err := position.NewTopology(fanout)
	if err != nil {
		t.Fatalf("NewTopology: %v", err)
	}
	return topo
}

func TestHandlerSeedAndAnswer(t *testing.T) {
	h := NewHandler(mustTopo(t, 2))
	pos := position.Position{Level: 2, Number: 0}
	h.SeedCover(pos, mdomain.NodeRef{})
	if got := h.UndecidedPositions(); len(got) != 1 {
		t.Fatalf("expected 1 undecided position, got %d", len(got))
	}
	h.ApplyInquiryAnswer(pos, mdomain.AttributeInquiryAnswer{
		AttributeValues: []mdomain.Attribute{{Key: "color", Value: "red"}},
	})
	if got := h.UndecidedPositions(); len(got) != 0 {
		t.Fatalf("expected 0 undecided positions after answer, got %d", len(got))
	}
	found := h.Evaluate("color=red")
	if len(found) != 1 {
		t.Fatalf("Evaluate(color=red) = %v, want 1 match", found)
	}
}

func TestHandlerSubscriptionThreshold(t *testing.T) {
	h := NewHandler(mustTopo(t, 2), WithSubscribeThreshold(3.0))
	for i := 0; i < 4; i++ {
		h.RecordQuery("color")
	}
	h.RecordUpdate("color")
	if !h.ShouldSubscribe("color") {
		t.Fatalf("expected ShouldSubscribe(color) after 4 queries : 1 update")
	}
	h.MarkSubscribed("color")
	if h.ShouldSubscribe("color") {
		t.Fatalf("ShouldSubscribe should be false once already subscribed")
	}
	for i := 0; i < 5; i++ {
		h.RecordUpdate("color")
	}
	if !h.ShouldUnsubscribe("color") {
		t.Fatalf("expected ShouldUnsubscribe(color) once updates overtake queries")
	}
}

func TestHandlerResetCoverClears(t *testing.T) {
	h := NewHandler(mustTopo(t, 2))
	h.SeedCover(position.Position{Level: 2, Number: 0}, mdomain.NodeRef{})
	h.ResetCover(position.Position{})
	if got := h.UndecidedPositions(); len(got) != 0 {
		t.Fatalf("expected empty cover after ResetCover, got %d", len(got))
	}
}
