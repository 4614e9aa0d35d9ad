package service

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/tiputa/apuri/internal/db"
	"github.com/tiputa/apuri/internal/models"
	"gorm.io/gorm"
)

// openTestDB 为每个测试打开独立的 SQLite 库并完成迁移。
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := db.ConnectSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}

func createUser(t *testing.T, gdb *gorm.DB, username string) *models.User {
	t.Helper()
	user := models.User{Username: username, PasswordHash: "x"}
	if err := gdb.Create(&user).Error; err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return &user
}

func createRoom(t *testing.T, gdb *gorm.DB, name string, hostID uint) *models.Room {
	t.Helper()
	room := models.Room{Name: name, HostID: hostID}
	if err := gdb.Create(&room).Error; err != nil {
		t.Fatalf("create room %s: %v", name, err)
	}
	return &room
}

func seedMessage(t *testing.T, gdb *gorm.DB, roomID, userID uint, text string, createdAt time.Time) *models.Message {
	t.Helper()
	msg := models.Message{RoomID: roomID, UserID: userID, Text: text, CreatedAt: createdAt}
	if err := gdb.Create(&msg).Error; err != nil {
		t.Fatalf("seed message: %v", err)
	}
	return &msg
}

func seedDM(t *testing.T, gdb *gorm.DB, senderID, receiverID uint, text string, createdAt time.Time) *models.DirectMessage {
	t.Helper()
	msg := models.DirectMessage{SenderID: senderID, ReceiverID: receiverID, Text: text, CreatedAt: createdAt}
	if err := gdb.Create(&msg).Error; err != nil {
		t.Fatalf("seed dm: %v", err)
	}
	return &msg
}
