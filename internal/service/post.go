package service

import (
	"strings"
	"time"

	"github.com/tiputa/apuri/internal/clock"
	"github.com/tiputa/apuri/internal/models"
	"gorm.io/gorm"
)

// PostService 封装公开投稿的业务逻辑。首页只展示最近 24 小时的投稿，
// 但投稿本身不会被清理删除，只是读取时按时间过滤。
type PostService struct {
	db     *gorm.DB
	now    clock.Func
	window time.Duration
}

func NewPostService(db *gorm.DB, now clock.Func, window time.Duration) *PostService {
	if now == nil {
		now = time.Now
	}
	return &PostService{db: db, now: now, window: window}
}

// PostDTO 是对外输出的投稿数据。
type PostDTO struct {
	ID        uint      `json:"id"`
	UserID    uint      `json:"user_id"`
	Username  string    `json:"username"`
	Text      string    `json:"text"`
	ImagePath string    `json:"image_path,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Create 创建投稿。文本必填，图片可选。
func (s *PostService) Create(userID uint, text, imagePath string) (*models.Post, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	post := models.Post{UserID: userID, Text: text, ImagePath: imagePath}
	if err := s.db.Create(&post).Error; err != nil {
		return nil, err
	}
	return &post, nil
}

// ListRecent 返回展示窗口内的投稿，最新的在前。
func (s *PostService) ListRecent() ([]PostDTO, error) {
	cutoff := s.now().Add(-s.window)
	var posts []models.Post
	err := s.db.Where("created_at >= ?", cutoff).Order("created_at desc, id desc").Find(&posts).Error
	if err != nil {
		return nil, err
	}

	seen := make(map[uint]struct{}, len(posts))
	userIDs := make([]uint, 0, len(posts))
	for _, p := range posts {
		if _, ok := seen[p.UserID]; ok {
			continue
		}
		seen[p.UserID] = struct{}{}
		userIDs = append(userIDs, p.UserID)
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

	out := make([]PostDTO, 0, len(posts))
	for _, p := range posts {
		out = append(out, PostDTO{
			ID:        p.ID,
			UserID:    p.UserID,
			Username:  usernames[p.UserID],
			Text:      p.Text,
			ImagePath: p.ImagePath,
			CreatedAt: p.CreatedAt,
		})
	}
	return out, nil
}
