package service

import (
	"strings"
	"time"

	"github.com/tiputa/apuri/internal/models"
	"gorm.io/gorm"
)

// MessageService 封装房间内消息的业务逻辑。
type MessageService struct {
	db      *gorm.DB
	sweeper *Sweeper
}

func NewMessageService(db *gorm.DB, sweeper *Sweeper) *MessageService {
	return &MessageService{db: db, sweeper: sweeper}
}

// MessageDTO 是对外输出的消息数据。
type MessageDTO struct {
	ID        uint      `json:"id"`
	RoomID    uint      `json:"room_id"`
	UserID    uint      `json:"user_id"`
	Username  string    `json:"username"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// ListByRoom 返回房间内未过期的消息，按创建时间升序。
// 读取前先对该房间做一次懒清理，过期消息被硬删除后才查列表，
// 因此过期界限以本次请求时刻为准。清理失败时本次读取直接失败。
func (s *MessageService) ListByRoom(roomID uint) ([]MessageDTO, error) {
	if _, err := s.sweeper.SweepRoom(roomID); err != nil {
		return nil, err
	}

	var msgs []models.Message
	err := s.db.Where("room_id = ?", roomID).Order("created_at asc, id asc").Find(&msgs).Error
	if err != nil {
		return nil, err
	}

	usernames, err := s.resolveUsernames(msgs)
	if err != nil {
		return nil, err
	}

	out := make([]MessageDTO, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, MessageDTO{
			ID:        m.ID,
			RoomID:    m.RoomID,
			UserID:    m.UserID,
			Username:  usernames[m.UserID],
			Text:      m.Text,
			CreatedAt: m.CreatedAt,
		})
	}
	return out, nil
}

// Post 在房间内追加一条消息。空白文本拒绝写入。
// 访问权限判定由调用方先行完成。
func (s *MessageService) Post(roomID, userID uint, text string) (*models.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	msg := models.Message{RoomID: roomID, UserID: userID, Text: text}
	if err := s.db.Create(&msg).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}

// resolveUsernames 批量查出消息涉及的用户名。
func (s *MessageService) resolveUsernames(msgs []models.Message) (map[uint]string, error) {
	seen := make(map[uint]struct{}, len(msgs))
	userIDs := make([]uint, 0, len(msgs))
	for _, m := range msgs {
		if _, ok := seen[m.UserID]; ok {
			continue
		}
		seen[m.UserID] = struct{}{}
		userIDs = append(userIDs, m.UserID)
	}

	usernames := make(map[uint]string, len(userIDs))
	if len(userIDs) > 0 {
		var users []models.User
		if err := s.db.Select("id", "username").Where("id IN ?", userIDs).Find(&users).Error; err != nil {
			return nil, err
		}
		for _, u := range users {
			usernames[u.ID] = u.Username
		}
	}
	return usernames, nil
}
