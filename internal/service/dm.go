package service

import (
	"sort"
	"strings"
	"time"

	"github.com/tiputa/apuri/internal/models"
	"gorm.io/gorm"
)

// DMService 封装私信与会话对象列表的业务逻辑。私信不经过房间的访问判定，
// 任意两个不同用户之间都可以互发。
type DMService struct {
	db *gorm.DB
}

func NewDMService(db *gorm.DB) *DMService {
	return &DMService{db: db}
}

// PartnerDTO 是会话对象列表的对外数据。
type PartnerDTO struct {
	UserID       uint      `json:"user_id"`
	Username     string    `json:"username"`
	LastActivity time.Time `json:"last_activity"`
}

// Partners 返回与 user 有过私信往来的全部用户，按最近活动时间倒序。
// 每个对象的 last_activity 取双向消息里最新一条的创建时间；
// 时间相同的按用户 ID 升序排，保证结果稳定。自己给自己发的消息不计入。
func (s *DMService) Partners(userID uint) ([]PartnerDTO, error) {
	var msgs []models.DirectMessage
	err := s.db.Where("sender_id = ? OR receiver_id = ?", userID, userID).Find(&msgs).Error
	if err != nil {
		return nil, err
	}

	last := make(map[uint]time.Time)
	for _, m := range msgs {
		partner := m.SenderID
		if partner == userID {
			partner = m.ReceiverID
		}
		if partner == userID {
			continue
		}
		if t, ok := last[partner]; !ok || m.CreatedAt.After(t) {
			last[partner] = m.CreatedAt
		}
	}

	ids := make([]uint, 0, len(last))
	for id := range last {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ti, tj := last[ids[i]], last[ids[j]]
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return ids[i] < ids[j]
	})

	usernames := make(map[uint]string, len(ids))
	if len(ids) > 0 {
		var users []models.User
		if err := s.db.Select("id", "username").Where("id IN ?", ids).Find(&users).Error; err != nil {
			return nil, err
		}
		for _, u := range users {
			usernames[u.ID] = u.Username
		}
	}

	out := make([]PartnerDTO, 0, len(ids))
	for _, id := range ids {
		out = append(out, PartnerDTO{UserID: id, Username: usernames[id], LastActivity: last[id]})
	}
	return out, nil
}

// DirectMessageDTO 是私信的对外数据。
type DirectMessageDTO struct {
	ID         uint      `json:"id"`
	SenderID   uint      `json:"sender_id"`
	ReceiverID uint      `json:"receiver_id"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}

// Conversation 返回两个用户之间双向的全部私信，按创建时间升序。
func (s *DMService) Conversation(userID, otherID uint) ([]DirectMessageDTO, error) {
	var msgs []models.DirectMessage
	err := s.db.
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)",
			userID, otherID, otherID, userID).
		Order("created_at asc, id asc").
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}

	out := make([]DirectMessageDTO, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, DirectMessageDTO{
			ID:         m.ID,
			SenderID:   m.SenderID,
			ReceiverID: m.ReceiverID,
			Text:       m.Text,
			CreatedAt:  m.CreatedAt,
		})
	}
	return out, nil
}

// Send 发送一条私信。空白文本拒绝写入，不产生任何记录；不能发给自己。
func (s *DMService) Send(senderID, receiverID uint, text string) (*models.DirectMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	if senderID == receiverID {
		return nil, ErrSelfMessage
	}
	var count int64
	if err := s.db.Model(&models.User{}).Where("id = ?", receiverID).Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, ErrUserNotFound
	}
	msg := models.DirectMessage{SenderID: senderID, ReceiverID: receiverID, Text: text}
	if err := s.db.Create(&msg).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}
