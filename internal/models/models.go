package models

import (
	"time"

	"gorm.io/gorm"
)

type User struct {
	ID           uint   `gorm:"primaryKey"`
	Username     string `gorm:"uniqueIndex;size:64;not null"`
	PasswordHash string `gorm:"not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AfterCreate 用户创建后同步建立一条空的 Profile，保证一对一关系始终存在。
func (u *User) AfterCreate(tx *gorm.DB) error {
	return tx.Create(&Profile{UserID: u.ID}).Error
}

type Profile struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    uint   `gorm:"uniqueIndex;not null"`
	Bio       string `gorm:"type:text"`
	ImagePath string
	UpdatedAt time.Time
}

type Post struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    uint   `gorm:"index;not null"`
	Text      string `gorm:"type:text;not null"`
	ImagePath string
	CreatedAt time.Time `gorm:"index"`
}

type Room struct {
	ID          uint   `gorm:"primaryKey"`
	Name        string `gorm:"size:100;not null"`
	Description string `gorm:"type:text"`
	HostID      uint   `gorm:"index;not null"`
	CreatedAt   time.Time
}

// RoomRequest 记录用户进入房间的申请，approved 只会从 false 翻转到 true。
// (user_id, room_id) 的唯一性靠创建前的存在性检查保证，存储层没有唯一约束。
type RoomRequest struct {
	ID        uint `gorm:"primaryKey"`
	UserID    uint `gorm:"index;not null"`
	RoomID    uint `gorm:"index;not null"`
	Approved  bool `gorm:"not null;default:false"`
	CreatedAt time.Time
}

type Message struct {
	ID        uint      `gorm:"primaryKey"`
	RoomID    uint      `gorm:"index:idx_msg_room;not null"`
	UserID    uint      `gorm:"index;not null"`
	Text      string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"index"`
}

type DirectMessage struct {
	ID         uint      `gorm:"primaryKey"`
	SenderID   uint      `gorm:"index;not null"`
	ReceiverID uint      `gorm:"index;not null"`
	Text       string    `gorm:"type:text;not null"`
	CreatedAt  time.Time `gorm:"index"`
}

type RefreshToken struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    uint      `gorm:"index;not null"`
	Token     string    `gorm:"uniqueIndex;size:128;not null"`
	ExpiresAt time.Time `gorm:"index;not null"`
	RevokedAt *time.Time
	CreatedAt time.Time
}
