package service

import (
	"errors"
	"testing"
	"time"

	"github.com/tiputa/apuri/internal/models"
)

func TestSend_TrimAndReject(t *testing.T) {
	gdb := openTestDB(t)
	svc := NewDMService(gdb)
	a := createUser(t, gdb, "a")
	b := createUser(t, gdb, "b")

	for _, text := range []string{"", "  ", "\t\n"} {
		if _, err := svc.Send(a.ID, b.ID, text); !errors.Is(err, ErrEmptyText) {
			t.Errorf("Send(%q) error = %v, want ErrEmptyText", text, err)
		}
	}
	var count int64
	gdb.Model(&models.DirectMessage{}).Count(&count)
	if count != 0 {
		t.Errorf("rows after rejected sends = %d, want 0", count)
	}

	msg, err := svc.Send(a.ID, b.ID, "  こんにちは  ")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if msg.Text != "こんにちは" {
		t.Errorf("Send() text = %q, want trimmed", msg.Text)
	}
}

func TestSend_SelfRejected(t *testing.T) {
	gdb := openTestDB(t)
	svc := NewDMService(gdb)
	a := createUser(t, gdb, "a")

	if _, err := svc.Send(a.ID, a.ID, "hi"); !errors.Is(err, ErrSelfMessage) {
		t.Errorf("Send() to self error = %v, want ErrSelfMessage", err)
	}
}

func TestSend_ReceiverNotFound(t *testing.T) {
	gdb := openTestDB(t)
	svc := NewDMService(gdb)
	a := createUser(t, gdb, "a")

	if _, err := svc.Send(a.ID, 999, "hi"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Send() error = %v, want ErrUserNotFound", err)
	}
}

func TestConversation_BothDirectionsAscending(t *testing.T) {
	gdb := openTestDB(t)
	svc := NewDMService(gdb)
	a := createUser(t, gdb, "a")
	b := createUser(t, gdb, "b")
	c := createUser(t, gdb, "c")

	t0 := baseTime
	seedDM(t, gdb, a.ID, b.ID, "hello", t0)
	seedDM(t, gdb, b.ID, a.ID, "hi", t0.Add(time.Minute))
	seedDM(t, gdb, a.ID, c.ID, "unrelated", t0.Add(2*time.Minute))

	msgs, err := svc.Conversation(a.ID, b.ID)
	if err != nil {
		t.Fatalf("Conversation() error = %v", err)
	}
	want := []string{"hello", "hi"}
	if len(msgs) != len(want) {
		t.Fatalf("Conversation() len = %d, want %d", len(msgs), len(want))
	}
	for i, w := range want {
		if msgs[i].Text != w {
			t.Errorf("Conversation()[%d] = %q, want %q", i, msgs[i].Text, w)
		}
	}
}

func TestPartners_OrderedByRecency(t *testing.T) {
	gdb := openTestDB(t)
	svc := NewDMService(gdb)
	a := createUser(t, gdb, "a")
	b := createUser(t, gdb, "b")
	c := createUser(t, gdb, "c")
	d := createUser(t, gdb, "d")

	t0 := baseTime
	// b：最后活动是 t0+3m（b 发来的），虽然 a 最后发给 b 是 t0。
	seedDM(t, gdb, a.ID, b.ID, "1", t0)
	seedDM(t, gdb, b.ID, a.ID, "2", t0.Add(3*time.Minute))
	// c：只有 a 单方向发过，t0+1m。
	seedDM(t, gdb, a.ID, c.ID, "3", t0.Add(time.Minute))
	// d：只收到过一条，t0+5m，排最前。
	seedDM(t, gdb, d.ID, a.ID, "4", t0.Add(5*time.Minute))

	partners, err := svc.Partners(a.ID)
	if err != nil {
		t.Fatalf("Partners() error = %v", err)
	}
	wantOrder := []uint{d.ID, b.ID, c.ID}
	if len(partners) != len(wantOrder) {
		t.Fatalf("Partners() len = %d, want %d", len(partners), len(wantOrder))
	}
	for i, id := range wantOrder {
		if partners[i].UserID != id {
			t.Errorf("Partners()[%d] = user %d, want %d", i, partners[i].UserID, id)
		}
	}
	if !partners[1].LastActivity.Equal(t0.Add(3 * time.Minute)) {
		t.Errorf("Partners() b last_activity = %v, want %v", partners[1].LastActivity, t0.Add(3*time.Minute))
	}
}

func TestPartners_Deduplicated(t *testing.T) {
	gdb := openTestDB(t)
	svc := NewDMService(gdb)
	a := createUser(t, gdb, "a")
	b := createUser(t, gdb, "b")

	for i := 0; i < 5; i++ {
		seedDM(t, gdb, a.ID, b.ID, "x", baseTime.Add(time.Duration(i)*time.Minute))
		seedDM(t, gdb, b.ID, a.ID, "y", baseTime.Add(time.Duration(i)*time.Minute+30*time.Second))
	}

	partners, err := svc.Partners(a.ID)
	if err != nil {
		t.Fatalf("Partners() error = %v", err)
	}
	if len(partners) != 1 {
		t.Fatalf("Partners() len = %d, want 1", len(partners))
	}
	if partners[0].UserID != b.ID || partners[0].Username != "b" {
		t.Errorf("Partners()[0] = %+v, want user b", partners[0])
	}
}

func TestPartners_TieBreakByUserID(t *testing.T) {
	gdb := openTestDB(t)
	svc := NewDMService(gdb)
	a := createUser(t, gdb, "a")
	b := createUser(t, gdb, "b")
	c := createUser(t, gdb, "c")

	seedDM(t, gdb, c.ID, a.ID, "x", baseTime)
	seedDM(t, gdb, b.ID, a.ID, "y", baseTime)

	partners, err := svc.Partners(a.ID)
	if err != nil {
		t.Fatalf("Partners() error = %v", err)
	}
	if len(partners) != 2 {
		t.Fatalf("Partners() len = %d, want 2", len(partners))
	}
	if partners[0].UserID != b.ID || partners[1].UserID != c.ID {
		t.Errorf("Partners() tie order = [%d %d], want [%d %d]",
			partners[0].UserID, partners[1].UserID, b.ID, c.ID)
	}
}

func TestPartners_ExcludesSelf(t *testing.T) {
	gdb := openTestDB(t)
	svc := NewDMService(gdb)
	a := createUser(t, gdb, "a")

	// 直接造一条发给自己的历史数据，列表里不应出现自己。
	seedDM(t, gdb, a.ID, a.ID, "memo", baseTime)

	partners, err := svc.Partners(a.ID)
	if err != nil {
		t.Fatalf("Partners() error = %v", err)
	}
	if len(partners) != 0 {
		t.Errorf("Partners() len = %d, want 0", len(partners))
	}
}
