package hub_test

import (
	"encoding/json"
	"testing"

	"fleetwatch/internal/hub"
)

func drain(t *testing.T, c *hub.Conn) []hub.Message {
	t.Helper()
	var out []hub.Message
	for {
		select {
		case payload := <-c.Receive():
			var msg hub.Message
			if err := json.Unmarshal(payload, &msg); err != nil {
				t.Fatalf("undecodable message: %v", err)
			}
			out = append(out, msg)
		default:
			return out
		}
	}
}

func TestHub_PublishReachesAllSubscribers(t *testing.T) {
	h := hub.New(16)

	a := h.Connect()
	b := h.Connect()
	other := h.Connect()

	h.Subscribe(a, []string{hub.ChannelAllAlerts})
	h.Subscribe(b, []string{hub.ChannelAllAlerts})
	h.Subscribe(other, []string{hub.SensorChannel("5")})

	h.Publish(hub.ChannelAllAlerts, hub.Message{Type: "alert", Data: "boom", Timestamp: 42})

	for _, c := range []*hub.Conn{a, b} {
		msgs := drain(t, c)
		if len(msgs) != 1 {
			t.Fatalf("expected 1 message, got %d", len(msgs))
		}
		if msgs[0].Type != "alert" || msgs[0].Timestamp != 42 {
			t.Errorf("unexpected message %+v", msgs[0])
		}
	}

	if msgs := drain(t, other); len(msgs) != 0 {
		t.Errorf("subscriber on another channel received %d messages", len(msgs))
	}
}

func TestHub_Unsubscribe(t *testing.T) {
	h := hub.New(16)
	c := h.Connect()

	h.Subscribe(c, []string{hub.ChannelAllAlerts})
	h.Unsubscribe(c, []string{hub.ChannelAllAlerts})
	h.Publish(hub.ChannelAllAlerts, hub.Message{Type: "alert"})

	if msgs := drain(t, c); len(msgs) != 0 {
		t.Errorf("unsubscribed connection received %d messages", len(msgs))
	}
	if n := h.SubscriberCount(hub.ChannelAllAlerts); n != 0 {
		t.Errorf("expected empty channel to be removed, found %d subscribers", n)
	}
}

func TestHub_DisconnectReleasesSubscriptions(t *testing.T) {
	h := hub.New(16)
	c := h.Connect()

	channels := []string{hub.ChannelAllAlerts, hub.AlertChannel("7"), hub.SensorChannel("7")}
	h.Subscribe(c, channels)
	h.Disconnect(c)

	for _, name := range channels {
		if n := h.SubscriberCount(name); n != 0 {
			t.Errorf("channel %s still has %d subscribers after disconnect", name, n)
		}
	}

	// Receive channel is closed
	if _, ok := <-c.Receive(); ok {
		t.Error("expected closed receive channel after disconnect")
	}

	// Double disconnect is safe
	h.Disconnect(c)
}

func TestHub_SlowSubscriberDropsNewest(t *testing.T) {
	h := hub.New(2)

	slow := h.Connect()
	fast := h.Connect()
	h.Subscribe(slow, []string{hub.ChannelAllAlerts})
	h.Subscribe(fast, []string{hub.ChannelAllAlerts})

	// Fill both buffers, then overflow; the fast one drains in between
	h.Publish(hub.ChannelAllAlerts, hub.Message{Type: "alert", Timestamp: 1})
	h.Publish(hub.ChannelAllAlerts, hub.Message{Type: "alert", Timestamp: 2})
	drain(t, fast)
	h.Publish(hub.ChannelAllAlerts, hub.Message{Type: "alert", Timestamp: 3})

	slowMsgs := drain(t, slow)
	if len(slowMsgs) != 2 {
		t.Fatalf("expected slow subscriber to keep 2 buffered messages, got %d", len(slowMsgs))
	}
	// Oldest messages survive; the newest was dropped
	if slowMsgs[0].Timestamp != 1 || slowMsgs[1].Timestamp != 2 {
		t.Errorf("expected buffered order preserved, got %+v", slowMsgs)
	}

	fastMsgs := drain(t, fast)
	if len(fastMsgs) != 1 || fastMsgs[0].Timestamp != 3 {
		t.Errorf("expected fast subscriber to receive the third message, got %+v", fastMsgs)
	}
}

func TestHub_PublishToUnknownChannel(t *testing.T) {
	h := hub.New(16)
	// Must not panic or create the channel
	h.Publish("device:none:sensor", hub.Message{Type: "sensor"})
	if n := h.SubscriberCount("device:none:sensor"); n != 0 {
		t.Errorf("publish created a channel with %d subscribers", n)
	}
}
