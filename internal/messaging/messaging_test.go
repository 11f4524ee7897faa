package messaging

import (
	"errors"
	"testing"
	"time"
)

func inbox(t *testing.T) *Inbox {
	t.Helper()
	in, err := DefaultInbox()
	if err != nil {
		t.Fatal(err)
	}
	return in
}

func TestSearchByDriverOrCargo(t *testing.T) {
	in := inbox(t)
	if got := in.Search("u1", ""); len(got) != 3 {
		t.Fatalf("expected 3 conversations, got %d", len(got))
	}
	if got := in.Search("u1", "TAKUNDA"); len(got) != 1 || got[0].Driver.Name != "Takunda Moyo" {
		t.Fatalf("driver search: %+v", got)
	}
	if got := in.Search("u1", "furniture"); len(got) != 1 || got[0].Cargo.ID != "123" {
		t.Fatalf("cargo search: %+v", got)
	}
	if got := in.Search("u1", "nothing matches"); len(got) != 0 {
		t.Fatalf("expected no results, got %d", len(got))
	}
	all := in.Search("u1", "")
	if all[0].ID != "1" {
		t.Fatalf("expected most recent conversation first, got %s", all[0].ID)
	}
}

func TestOpenClearsUnread(t *testing.T) {
	in := inbox(t)
	c, err := in.Open("u1", "3")
	if err != nil || c.Unread != 0 {
		t.Fatalf("open: %+v %v", c, err)
	}
	for _, c := range in.Search("u1", "fleet") {
		if c.Unread != 0 {
			t.Fatal("unread not cleared")
		}
	}
	if other := in.Search("u2", "fleet"); other[0].Unread != 1 {
		t.Fatal("another user's inbox was changed")
	}
	if _, err := in.Open("u1", "99"); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
}

func TestSendAppends(t *testing.T) {
	in := inbox(t)
	fixed := time.Now().Add(time.Minute)
	in.now = func() time.Time { return fixed }
	if _, err := in.Send("u1", "2", "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	m, err := in.Send("u1", "2", " On my way ")
	if err != nil {
		t.Fatal(err)
	}
	c, _ := in.Open("u1", "2")
	last := c.Messages[len(c.Messages)-1]
	if last.ID != m.ID || last.Text != "On my way" || last.Sender != FromUser || !c.LastActive.Equal(fixed) {
		t.Fatalf("unexpected last message %+v", last)
	}
	if got := in.Search("u1", ""); got[0].ID != "2" {
		t.Fatalf("expected conversation 2 to move to the top, got %s", got[0].ID)
	}
}

func TestStartIsIdempotent(t *testing.T) {
	in := inbox(t)
	d := Participant{ID: "4", Name: "Harare Hauliers"}
	c := in.Start("u1", d, CargoRef{ID: "c9", Title: "Sofa", Status: "paid"}, "Booked, see you soon", FromDriver)
	if c.Unread != 1 || len(c.Messages) != 1 {
		t.Fatalf("unexpected new conversation %+v", c)
	}
	again := in.Start("u1", d, CargoRef{ID: "c9", Title: "Sofa", Status: "tracking"}, "ignored", FromDriver)
	if again.ID != c.ID || len(again.Messages) != 1 || again.Cargo.Status != "tracking" {
		t.Fatalf("unexpected conversation %+v", again)
	}
}

func TestStartWithShipperOpening(t *testing.T) {
	in := inbox(t)
	c := in.Start("u1", Participant{ID: "4", Name: "Harare Hauliers"}, CargoRef{ID: "c9", Title: "Sofa"}, "I'm offering ZWL 3,000", FromUser)
	if c.Unread != 0 || len(c.Messages) != 1 || c.Messages[0].Sender != FromUser {
		t.Fatalf("unexpected conversation %+v", c)
	}
}
