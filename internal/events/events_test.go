package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/ernie/trinity-link/internal/domain"
	"github.com/ernie/trinity-link/internal/linker"
)

func startServer(t *testing.T) string {
	t.Helper()
	ns, err := StartEmbedded("127.0.0.1", -1)
	if err != nil {
		t.Fatalf("StartEmbedded: %v", err)
	}
	t.Cleanup(ns.Shutdown)
	return ns.ClientURL()
}

func TestPublishEvent(t *testing.T) {
	url := startServer(t)

	pub, err := Connect(url, "trinitylink")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer pub.Close()

	sub, err := nats.Connect(url)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()
	msgs := make(chan *nats.Msg, 4)
	if _, err := sub.ChanSubscribe("trinitylink.>", msgs); err != nil {
		t.Fatal(err)
	}
	sub.Flush()

	ev := domain.NewEvent(domain.EventLinkCreated, domain.LinkEvent{Game: "g1", Chat: "c1"})
	if err := pub.Publish(ev); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case msg := <-msgs:
		if msg.Subject != "trinitylink.link_created" {
			t.Errorf("subject = %s", msg.Subject)
		}
		var got struct {
			ID   string           `json:"id"`
			Type string           `json:"event"`
			Data domain.LinkEvent `json:"data"`
		}
		if err := json.Unmarshal(msg.Data, &got); err != nil {
			t.Fatal(err)
		}
		if got.ID != ev.ID || got.Type != domain.EventLinkCreated || got.Data.Game != "g1" || got.Data.Chat != "c1" {
			t.Errorf("payload = %+v", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("event not received")
	}
}

func TestHooks(t *testing.T) {
	url := startServer(t)
	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatal(err)
	}
	defer nc.Close()

	hooks := NewHooks(nc, "trinitylink", 500*time.Millisecond)
	ctx := context.Background()

	if d := hooks.BeforeLink(ctx, "g1", "c1"); d != linker.Allow {
		t.Errorf("no responders: decision = %v, want Allow", d)
	}

	responder, err := nats.Connect(url)
	if err != nil {
		t.Fatal(err)
	}
	defer responder.Close()
	responder.Subscribe("trinitylink.hooks.before_link", func(m *nats.Msg) {
		var req HookRequest
		json.Unmarshal(m.Data, &req)
		reply, _ := json.Marshal(HookReply{Allow: req.Game != "banned", Reason: "banned GUID"})
		m.Respond(reply)
	})
	responder.Subscribe("trinitylink.hooks.before_unlink", func(m *nats.Msg) {
		m.Respond([]byte("not json"))
	})
	responder.Flush()

	if d := hooks.BeforeLink(ctx, "g1", "c1"); d != linker.Allow {
		t.Errorf("allowed link: decision = %v", d)
	}
	if d := hooks.BeforeLink(ctx, "banned", "c1"); d != linker.Deny {
		t.Errorf("denied link: decision = %v", d)
	}
	if d := hooks.BeforeUnlink(ctx, "g1", "c1"); d != linker.Deny {
		t.Errorf("garbage reply: decision = %v, want Deny", d)
	}
}

func TestHookTimeoutDenies(t *testing.T) {
	url := startServer(t)
	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatal(err)
	}
	defer nc.Close()

	nc.Subscribe("trinitylink.hooks.before_unlink", func(m *nats.Msg) {})
	nc.Flush()

	hooks := NewHooks(nc, "trinitylink", 100*time.Millisecond)
	if d := hooks.BeforeUnlink(context.Background(), "g1", "c1"); d != linker.Deny {
		t.Errorf("silent responder: decision = %v, want Deny", d)
	}
}
