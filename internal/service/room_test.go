package service

import (
	"errors"
	"testing"

	"github.com/tiputa/apuri/internal/models"
)

func TestCanEnter_Host(t *testing.T) {
	gdb := openTestDB(t)
	svc := NewRoomService(gdb)
	host := createUser(t, gdb, "host")
	room := createRoom(t, gdb, "study", host.ID)

	allowed, err := svc.CanEnter(host.ID, room)
	if err != nil {
		t.Fatalf("CanEnter() error = %v", err)
	}
	if !allowed {
		t.Error("CanEnter() = false for host, want true")
	}
}

func TestCanEnter_RequiresApproval(t *testing.T) {
	gdb := openTestDB(t)
	svc := NewRoomService(gdb)
	host := createUser(t, gdb, "host")
	guest := createUser(t, gdb, "guest")
	room := createRoom(t, gdb, "study", host.ID)

	// 无申请
	allowed, err := svc.CanEnter(guest.ID, room)
	if err != nil {
		t.Fatalf("CanEnter() error = %v", err)
	}
	if allowed {
		t.Error("CanEnter() = true with no request, want false")
	}

	// 申请中
	if err := svc.RequestJoin(guest.ID, room.ID); err != nil {
		t.Fatalf("RequestJoin() error = %v", err)
	}
	allowed, _ = svc.CanEnter(guest.ID, room)
	if allowed {
		t.Error("CanEnter() = true with pending request, want false")
	}

	// 批准后
	var req models.RoomRequest
	if err := gdb.Where("user_id = ? AND room_id = ?", guest.ID, room.ID).First(&req).Error; err != nil {
		t.Fatalf("load request: %v", err)
	}
	if err := svc.Approve(req.ID, host.ID); err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	allowed, _ = svc.CanEnter(guest.ID, room)
	if !allowed {
		t.Error("CanEnter() = false after approval, want true")
	}
}

func TestRequestJoin_Idempotent(t *testing.T) {
	gdb := openTestDB(t)
	svc := NewRoomService(gdb)
	host := createUser(t, gdb, "host")
	guest := createUser(t, gdb, "guest")
	room := createRoom(t, gdb, "study", host.ID)

	if err := svc.RequestJoin(guest.ID, room.ID); err != nil {
		t.Fatalf("RequestJoin() error = %v", err)
	}
	if err := svc.RequestJoin(guest.ID, room.ID); err != nil {
		t.Fatalf("RequestJoin() second call error = %v", err)
	}

	var count int64
	gdb.Model(&models.RoomRequest{}).Where("user_id = ? AND room_id = ?", guest.ID, room.ID).Count(&count)
	if count != 1 {
		t.Errorf("RoomRequest rows = %d, want 1", count)
	}
}

func TestRequestJoin_RoomNotFound(t *testing.T) {
	gdb := openTestDB(t)
	svc := NewRoomService(gdb)
	guest := createUser(t, gdb, "guest")

	err := svc.RequestJoin(guest.ID, 999)
	if !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("RequestJoin() error = %v, want ErrRoomNotFound", err)
	}
}

func TestApprove_NonHostNoOp(t *testing.T) {
	gdb := openTestDB(t)
	svc := NewRoomService(gdb)
	host := createUser(t, gdb, "host")
	guest := createUser(t, gdb, "guest")
	other := createUser(t, gdb, "other")
	room := createRoom(t, gdb, "study", host.ID)

	if err := svc.RequestJoin(guest.ID, room.ID); err != nil {
		t.Fatalf("RequestJoin() error = %v", err)
	}
	var req models.RoomRequest
	gdb.Where("user_id = ? AND room_id = ?", guest.ID, room.ID).First(&req)

	err := svc.Approve(req.ID, other.ID)
	if !errors.Is(err, ErrNotHost) {
		t.Errorf("Approve() by non-host error = %v, want ErrNotHost", err)
	}

	gdb.First(&req, req.ID)
	if req.Approved {
		t.Error("request approved by non-host, want unchanged")
	}
}

func TestApprove_NotFound(t *testing.T) {
	gdb := openTestDB(t)
	svc := NewRoomService(gdb)
	host := createUser(t, gdb, "host")

	err := svc.Approve(999, host.ID)
	if !errors.Is(err, ErrRequestNotFound) {
		t.Errorf("Approve() error = %v, want ErrRequestNotFound", err)
	}
}

func TestListPending(t *testing.T) {
	gdb := openTestDB(t)
	svc := NewRoomService(gdb)
	host := createUser(t, gdb, "host")
	guest := createUser(t, gdb, "guest")
	other := createUser(t, gdb, "other")
	room := createRoom(t, gdb, "study", host.ID)
	otherRoom := createRoom(t, gdb, "else", other.ID)

	// host 房间的两条申请，其中一条已批准；other 房间的申请不应出现。
	if err := svc.RequestJoin(guest.ID, room.ID); err != nil {
		t.Fatalf("RequestJoin() error = %v", err)
	}
	if err := svc.RequestJoin(other.ID, room.ID); err != nil {
		t.Fatalf("RequestJoin() error = %v", err)
	}
	if err := svc.RequestJoin(guest.ID, otherRoom.ID); err != nil {
		t.Fatalf("RequestJoin() error = %v", err)
	}
	var req models.RoomRequest
	gdb.Where("user_id = ? AND room_id = ?", other.ID, room.ID).First(&req)
	if err := svc.Approve(req.ID, host.ID); err != nil {
		t.Fatalf("Approve() error = %v", err)
	}

	pending, err := svc.ListPending(host.ID)
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("ListPending() len = %d, want 1", len(pending))
	}
	if pending[0].UserID != guest.ID || pending[0].RoomID != room.ID {
		t.Errorf("ListPending()[0] = user %d room %d, want user %d room %d",
			pending[0].UserID, pending[0].RoomID, guest.ID, room.ID)
	}
	if pending[0].Username != "guest" || pending[0].RoomName != "study" {
		t.Errorf("ListPending()[0] names = %q/%q, want guest/study", pending[0].Username, pending[0].RoomName)
	}

	count, err := svc.PendingCount(host.ID)
	if err != nil {
		t.Fatalf("PendingCount() error = %v", err)
	}
	if count != 1 {
		t.Errorf("PendingCount() = %d, want 1", count)
	}
}

func TestList_StatusPerViewer(t *testing.T) {
	gdb := openTestDB(t)
	svc := NewRoomService(gdb)
	host := createUser(t, gdb, "host")
	guest := createUser(t, gdb, "guest")
	roomA := createRoom(t, gdb, "a", host.ID)
	roomB := createRoom(t, gdb, "b", host.ID)
	roomC := createRoom(t, gdb, "c", host.ID)

	if err := svc.RequestJoin(guest.ID, roomA.ID); err != nil {
		t.Fatalf("RequestJoin() error = %v", err)
	}
	if err := svc.RequestJoin(guest.ID, roomB.ID); err != nil {
		t.Fatalf("RequestJoin() error = %v", err)
	}
	var req models.RoomRequest
	gdb.Where("user_id = ? AND room_id = ?", guest.ID, roomB.ID).First(&req)
	if err := svc.Approve(req.ID, host.ID); err != nil {
		t.Fatalf("Approve() error = %v", err)
	}

	rooms, err := svc.List(guest.ID)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	statuses := make(map[uint]string, len(rooms))
	for _, r := range rooms {
		statuses[r.ID] = r.Status
	}
	if statuses[roomA.ID] != StatusPending {
		t.Errorf("room a status = %q, want %q", statuses[roomA.ID], StatusPending)
	}
	if statuses[roomB.ID] != StatusApproved {
		t.Errorf("room b status = %q, want %q", statuses[roomB.ID], StatusApproved)
	}
	if statuses[roomC.ID] != StatusNone {
		t.Errorf("room c status = %q, want %q", statuses[roomC.ID], StatusNone)
	}

	hostRooms, err := svc.List(host.ID)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	for _, r := range hostRooms {
		if r.Status != StatusHost {
			t.Errorf("room %d status for host = %q, want %q", r.ID, r.Status, StatusHost)
		}
	}
}
