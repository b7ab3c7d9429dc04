package port

import (
	"context"
	"testing"
	"time"

	"github.com/axiom-sdr/flowgraphd/internal/pmt"
)

func TestMailboxSendRecv(t *testing.T) {
	m := NewMailbox(1)
	if err := m.Send(context.Background(), pmt.U32(5)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	select {
	case env := <-m.Chan():
		if v, ok := env.Msg.AsU32(); !ok || v != 5 {
			t.Fatalf("got %v, want U32(5)", env.Msg)
		}
		if env.Reply != nil {
			t.Fatal("fire-and-forget Send should not set a reply channel")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestMailboxTrySendFullReturnsFalse(t *testing.T) {
	m := NewMailbox(1)
	if !m.TrySend(pmt.Ok) {
		t.Fatal("first TrySend should succeed on empty mailbox")
	}
	if m.TrySend(pmt.Ok) {
		t.Fatal("second TrySend should fail, mailbox is full")
	}
}

func TestMailboxSendCancelled(t *testing.T) {
	m := NewMailbox(1)
	m.TrySend(pmt.Ok) // fill the single buffered slot
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.Send(ctx, pmt.Ok); err == nil {
		t.Fatal("expected error sending to full mailbox with cancelled context")
	}
}

func TestMailboxCallRoundTrip(t *testing.T) {
	m := NewMailbox(1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		env := <-m.Chan()
		if env.Reply == nil {
			t.Error("Call should set a reply channel")
			return
		}
		env.Reply <- Reply{Value: pmt.U32(99)}
	}()

	reply, err := m.Call(context.Background(), pmt.String("ping"))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if v, ok := reply.AsU32(); !ok || v != 99 {
		t.Fatalf("reply = %v, want U32(99)", reply)
	}
	<-done
}

func TestMailboxCallCancelledBeforeReply(t *testing.T) {
	m := NewMailbox(1)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := m.Call(ctx, pmt.Ok); err == nil {
		t.Fatal("expected error when nothing answers the call before the deadline")
	}
}

func TestOutputFanoutOrderAndDelivery(t *testing.T) {
	var fanout OutputFanout
	m1 := NewMailbox(4)
	m2 := NewMailbox(4)
	m3 := NewMailbox(4)
	fanout.Connect(m1)
	fanout.Connect(m2)
	fanout.Connect(m3)

	if fanout.Targets() != 3 {
		t.Fatalf("Targets() = %d, want 3", fanout.Targets())
	}

	if err := fanout.Post(context.Background(), pmt.String("hi")); err != nil {
		t.Fatalf("Post: %v", err)
	}

	for i, m := range []*Mailbox{m1, m2, m3} {
		select {
		case env := <-m.Chan():
			if s, ok := env.Msg.AsString(); !ok || s != "hi" {
				t.Fatalf("target %d got %v, want String(hi)", i, env.Msg)
			}
		case <-time.After(time.Second):
			t.Fatalf("target %d: timed out waiting for message", i)
		}
	}
}

func TestMailboxLen(t *testing.T) {
	m := NewMailbox(4)
	if m.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", m.Len())
	}
	m.TrySend(pmt.Ok)
	m.TrySend(pmt.Ok)
	if m.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", m.Len())
	}
}
