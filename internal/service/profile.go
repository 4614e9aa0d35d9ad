package service

import (
	"errors"
	"time"

	"github.com/tiputa/apuri/internal/models"
	"gorm.io/gorm"
)

// ProfileService 封装个人资料的业务逻辑。Profile 随用户创建自动生成，
// 只有本人能修改。
type ProfileService struct {
	db *gorm.DB
}

func NewProfileService(db *gorm.DB) *ProfileService {
	return &ProfileService{db: db}
}

// ProfileDTO 是对外输出的个人资料数据。
type ProfileDTO struct {
	UserID    uint      `json:"user_id"`
	Username  string    `json:"username"`
	Bio       string    `json:"bio"`
	ImagePath string    `json:"image_path,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Get 按用户 ID 取个人资料。
func (s *ProfileService) Get(userID uint) (*ProfileDTO, error) {
	var user models.User
	if err := s.db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	var profile models.Profile
	if err := s.db.Where("user_id = ?", userID).First(&profile).Error; err != nil {
		return nil, err
	}
	return &ProfileDTO{
		UserID:    user.ID,
		Username:  user.Username,
		Bio:       profile.Bio,
		ImagePath: profile.ImagePath,
		UpdatedAt: profile.UpdatedAt,
	}, nil
}

// Update 修改个人资料。actor 不是本人时拒绝，不产生任何变更。
// imagePath 为空串时保留原图片。
func (s *ProfileService) Update(userID, actorID uint, bio, imagePath string) (*ProfileDTO, error) {
	if userID != actorID {
		return nil, ErrNotProfileOwner
	}
	var profile models.Profile
	if err := s.db.Where("user_id = ?", userID).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	profile.Bio = bio
	if imagePath != "" {
		profile.ImagePath = imagePath
	}
	if err := s.db.Save(&profile).Error; err != nil {
		return nil, err
	}
	return s.Get(userID)
}
