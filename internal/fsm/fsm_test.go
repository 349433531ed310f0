package fsm

import (
	"errors"
	"testing"

	"minhton/internal/mdomain"
)

func TestJoinViaBootstrapHappyPath(t *testing.T) {
	f := New()
	if f.State() != Idle {
		t.Fatalf("initial state = %s, want Idle", f.State())
	}
	if err := f.Accept(SignalJoinNetwork{Mode: JoinViaBootstrap}); err != nil {
		t.Fatalf("Signal(Join,ViaBootstrap): %v", err)
	}
	if f.State() != WaitForBootstrapResponse {
		t.Fatalf("state = %s, want WaitForBootstrapResponse", f.State())
	}
	if err := f.Accept(EventTimeout{Kind: TimeoutBootstrapResponse, ValidBootstrapResponse: true}); err != nil {
		t.Fatalf("Timeout(BootstrapResponse,valid): %v", err)
	}
	if f.State() != WaitForJoinAccept {
		t.Fatalf("state = %s, want WaitForJoinAccept", f.State())
	}
	if err := f.Accept(EventReceiveMsg{Type: mdomain.MsgJoinAccept}); err != nil {
		t.Fatalf("Recv(JoinAccept): %v", err)
	}
	if f.State() != Connected {
		t.Fatalf("state = %s, want Connected", f.State())
	}
}

func TestJoinViaBootstrapInvalidResponseGoesToErrorState(t *testing.T) {
	f := New()
	_ = f.Accept(SignalJoinNetwork{Mode: JoinViaBootstrap})
	if err := f.Accept(EventTimeout{Kind: TimeoutBootstrapResponse, ValidBootstrapResponse: false}); err != nil {
		t.Fatalf("Timeout(BootstrapResponse,invalid): %v", err)
	}
	if f.State() != ErrorState {
		t.Fatalf("state = %s, want ErrorState", f.State())
	}
	// ErrorState is re-enterable: a fresh join signal recovers it.
	if err := f.Accept(SignalJoinNetwork{Mode: JoinViaAddress}); err != nil {
		t.Fatalf("re-entering from ErrorState: %v", err)
	}
	if f.State() != WaitForJoinAccept {
		t.Fatalf("state = %s, want WaitForJoinAccept", f.State())
	}
}

func TestAcceptingChildRoundTrip(t *testing.T) {
	f := New()
	_ = f.Accept(SignalJoinNetwork{Mode: JoinViaAddress})
	_ = f.Accept(EventReceiveMsg{Type: mdomain.MsgJoinAccept})
	if f.State() != Connected {
		t.Fatalf("state = %s, want Connected", f.State())
	}
	if err := f.Accept(EventSendMsg{Type: mdomain.MsgJoinAccept}); err != nil {
		t.Fatalf("Send(JoinAccept): %v", err)
	}
	if f.State() != ConnectedAcceptingChild {
		t.Fatalf("state = %s, want ConnectedAcceptingChild", f.State())
	}
	if err := f.Accept(EventReceiveMsg{Type: mdomain.MsgJoinAcceptAck}); err != nil {
		t.Fatalf("Recv(JoinAcceptAck): %v", err)
	}
	if f.State() != Connected {
		t.Fatalf("state = %s, want Connected", f.State())
	}
}

func TestLeaveWithoutReplacement(t *testing.T) {
	f := New()
	_ = f.Accept(SignalJoinNetwork{Mode: JoinViaAddress})
	_ = f.Accept(EventReceiveMsg{Type: mdomain.MsgJoinAccept})
	if err := f.Accept(SignalLeaveNetwork{CanLeaveWithoutReplacement: true}); err != nil {
		t.Fatalf("Signal(Leave,can_leave): %v", err)
	}
	if f.State() != ConnectedWaitingParentResponseDirectLeaveWoReplacement {
		t.Fatalf("state = %s, want ConnectedWaitingParentResponseDirectLeaveWoReplacement", f.State())
	}
	_ = f.Accept(EventReceiveMsg{Type: mdomain.MsgSignoffParentAnswer})
	if f.State() != SignOffFromInlevelNeighborsDirectLeaveWoReplacement {
		t.Fatalf("state = %s, want SignOffFromInlevelNeighborsDirectLeaveWoReplacement", f.State())
	}
	if err := f.Accept(EventReceiveMsg{Type: mdomain.MsgRemoveNeighborAck}); err != nil {
		t.Fatalf("Recv(RemoveNeighborAck): %v", err)
	}
	if f.State() != Idle {
		t.Fatalf("state = %s, want Idle", f.State())
	}
}

func TestLeaveWithReplacement(t *testing.T) {
	f := New()
	_ = f.Accept(SignalJoinNetwork{Mode: JoinViaAddress})
	_ = f.Accept(EventReceiveMsg{Type: mdomain.MsgJoinAccept})
	if err := f.Accept(SignalLeaveNetwork{CanLeaveWithoutReplacement: false}); err != nil {
		t.Fatalf("Signal(Leave,!can_leave): %v", err)
	}
	if f.State() != WaitForReplacementOffer {
		t.Fatalf("state = %s, want WaitForReplacementOffer", f.State())
	}
	_ = f.Accept(EventReceiveMsg{Type: mdomain.MsgReplacementOffer})
	if f.State() != ConnectedWaitingParentResponse {
		t.Fatalf("state = %s, want ConnectedWaitingParentResponse", f.State())
	}
	_ = f.Accept(EventReceiveMsg{Type: mdomain.MsgSignoffParentAnswer})
	if f.State() != SignOffFromInlevelNeighbors {
		t.Fatalf("state = %s, want SignOffFromInlevelNeighbors", f.State())
	}
	if err := f.Accept(EventReceiveMsg{Type: mdomain.MsgRemoveNeighborAck}); err != nil {
		t.Fatalf("Recv(RemoveNeighborAck): %v", err)
	}
	if f.State() != Idle {
		t.Fatalf("state = %s, want Idle", f.State())
	}
}

func TestReplacingSuccessorRoundTrip(t *testing.T) {
	f := New()
	_ = f.Accept(SignalJoinNetwork{Mode: JoinViaAddress})
	_ = f.Accept(EventReceiveMsg{Type: mdomain.MsgJoinAccept})
	if err := f.Accept(EventSendMsg{Type: mdomain.MsgReplacementOffer}); err != nil {
		t.Fatalf("Send(ReplacementOffer): %v", err)
	}
	if f.State() != ConnectedReplacing {
		t.Fatalf("state = %s, want ConnectedReplacing", f.State())
	}
	if err := f.Accept(EventReceiveMsg{Type: mdomain.MsgReplacementAck}); err != nil {
		t.Fatalf("Recv(ReplacementAck): %v", err)
	}
	if f.State() != Connected {
		t.Fatalf("state = %s, want Connected", f.State())
	}
}

func TestBootstrapDiscoverLegalInEveryState(t *testing.T) {
	for _, s := range allStates() {
		f := New()
		f.state = s
		if !f.CanAccept(EventReceiveMsg{Type: mdomain.MsgBootstrapDiscover}) {
			t.Errorf("BootstrapDiscover should be legal in state %s", s)
		}
	}
}

func TestUnmatchedEventReturnsErrFSM(t *testing.T) {
	f := New()
	err := f.Accept(EventReceiveMsg{Type: mdomain.MsgJoinAcceptAck})
	if !errors.Is(err, mdomain.ErrFSM) {
		t.Fatalf("Accept(unexpected) = %v, want ErrFSM", err)
	}
	if f.State() != Idle {
		t.Fatalf("state should be unchanged on rejected event, got %s", f.State())
	}
}

func TestJoinRetryLoop(t *testing.T) {
	f := New()
	_ = f.Accept(SignalJoinNetwork{Mode: JoinViaAddress})
	if err := f.Accept(EventTimeout{Kind: TimeoutJoinAcceptResponse}); err != nil {
		t.Fatalf("Timeout(JoinAcceptResponse): %v", err)
	}
	if f.State() != JoinFailed {
		t.Fatalf("state = %s, want JoinFailed", f.State())
	}
	if err := f.Accept(EventTimeout{Kind: TimeoutJoinRetry}); err != nil {
		t.Fatalf("Timeout(JoinRetry): %v", err)
	}
	if f.State() != WaitForJoinAccept {
		t.Fatalf("state = %s, want WaitForJoinAccept", f.State())
	}
}
