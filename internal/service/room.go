package service

import (
	"errors"
	"time"

	"github.com/tiputa/apuri/internal/models"
	"gorm.io/gorm"
)

// RoomService 封装房间与入室申请相关的业务逻辑。
type RoomService struct {
	db *gorm.DB
}

func NewRoomService(db *gorm.DB) *RoomService {
	return &RoomService{db: db}
}

// 房间列表里展示给调用者的身份状态。
const (
	StatusHost     = "host"
	StatusApproved = "approved"
	StatusPending  = "pending"
	StatusNone     = "none"
)

// RoomDTO 是对外输出的房间数据。
type RoomDTO struct {
	ID          uint      `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	HostID      uint      `json:"host_id"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// Create 创建新房间，调用者成为 host。房间创建后不可修改、不可删除。
func (s *RoomService) Create(name, description string, hostID uint) (*models.Room, error) {
	room := models.Room{Name: name, Description: description, HostID: hostID}
	if err := s.db.Create(&room).Error; err != nil {
		return nil, err
	}
	return &room, nil
}

// Get 按 ID 取房间。
func (s *RoomService) Get(roomID uint) (*models.Room, error) {
	var room models.Room
	if err := s.db.First(&room, roomID).Error; err != nil {
		return nil, ErrRoomNotFound
	}
	return &room, nil
}

// List 按创建时间倒序返回全部房间，并标注 viewer 在每个房间的状态。
func (s *RoomService) List(viewerID uint) ([]RoomDTO, error) {
	var rooms []models.Room
	if err := s.db.Order("created_at desc, id desc").Find(&rooms).Error; err != nil {
		return nil, err
	}

	var reqs []models.RoomRequest
	if err := s.db.Where("user_id = ?", viewerID).Find(&reqs).Error; err != nil {
		return nil, err
	}
	byRoom := make(map[uint]bool, len(reqs))
	for _, r := range reqs {
		byRoom[r.RoomID] = r.Approved
	}

	out := make([]RoomDTO, 0, len(rooms))
	for _, r := range rooms {
		status := StatusNone
		if r.HostID == viewerID {
			status = StatusHost
		} else if approved, ok := byRoom[r.ID]; ok {
			if approved {
				status = StatusApproved
			} else {
				status = StatusPending
			}
		}
		out = append(out, RoomDTO{
			ID:          r.ID,
			Name:        r.Name,
			Description: r.Description,
			HostID:      r.HostID,
			Status:      status,
			CreatedAt:   r.CreatedAt,
		})
	}
	return out, nil
}

// CanEnter 判定用户能否进入房间：host 本人，或存在已批准的入室申请。
// 每次房间相关请求都重新判定，审批状态可能随时变化，不做缓存。
func (s *RoomService) CanEnter(userID uint, room *models.Room) (bool, error) {
	if room.HostID == userID {
		return true, nil
	}
	var count int64
	err := s.db.Model(&models.RoomRequest{}).
		Where("user_id = ? AND room_id = ? AND approved = ?", userID, room.ID, true).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// RequestJoin 为 (user, room) 创建入室申请。已存在时静默跳过，保证幂等。
func (s *RoomService) RequestJoin(userID, roomID uint) error {
	if _, err := s.Get(roomID); err != nil {
		return err
	}
	var count int64
	err := s.db.Model(&models.RoomRequest{}).
		Where("user_id = ? AND room_id = ?", userID, roomID).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	return s.db.Create(&models.RoomRequest{UserID: userID, RoomID: roomID}).Error
}

// Approve 批准入室申请。只有该房间的 host 能批准，其他人调用不产生任何变更。
// 批准是单向的，没有撤销操作。
func (s *RoomService) Approve(requestID, actorID uint) error {
	var req models.RoomRequest
	if err := s.db.First(&req, requestID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrRequestNotFound
		}
		return err
	}
	var room models.Room
	if err := s.db.First(&room, req.RoomID).Error; err != nil {
		return ErrRoomNotFound
	}
	if room.HostID != actorID {
		return ErrNotHost
	}
	return s.db.Model(&req).Update("approved", true).Error
}

// PendingRequestDTO 是待审批申请的对外数据。
type PendingRequestDTO struct {
	ID        uint      `json:"id"`
	UserID    uint      `json:"user_id"`
	Username  string    `json:"username"`
	RoomID    uint      `json:"room_id"`
	RoomName  string    `json:"room_name"`
	CreatedAt time.Time `json:"created_at"`
}

// ListPending 返回 host 名下房间的全部待审批申请。
func (s *RoomService) ListPending(hostID uint) ([]PendingRequestDTO, error) {
	var reqs []models.RoomRequest
	err := s.db.
		Where("approved = ? AND room_id IN (?)", false,
			s.db.Model(&models.Room{}).Select("id").Where("host_id = ?", hostID)).
		Order("created_at asc").
		Find(&reqs).Error
	if err != nil {
		return nil, err
	}

	out := make([]PendingRequestDTO, 0, len(reqs))
	for _, r := range reqs {
		var user models.User
		if err := s.db.Select("id", "username").First(&user, r.UserID).Error; err != nil {
			return nil, err
		}
		var room models.Room
		if err := s.db.Select("id", "name").First(&room, r.RoomID).Error; err != nil {
			return nil, err
		}
		out = append(out, PendingRequestDTO{
			ID:        r.ID,
			UserID:    r.UserID,
			Username:  user.Username,
			RoomID:    r.RoomID,
			RoomName:  room.Name,
			CreatedAt: r.CreatedAt,
		})
	}
	return out, nil
}

// PendingCount 返回 host 名下房间的待审批数量，驱动角标展示。
func (s *RoomService) PendingCount(hostID uint) (int64, error) {
	var count int64
	err := s.db.Model(&models.RoomRequest{}).
		Where("approved = ? AND room_id IN (?)", false,
			s.db.Model(&models.Room{}).Select("id").Where("host_id = ?", hostID)).
		Count(&count).Error
	return count, err
}
