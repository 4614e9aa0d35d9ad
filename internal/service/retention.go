package service

import (
	"time"

	"github.com/tiputa/apuri/internal/clock"
	"github.com/tiputa/apuri/internal/metrics"
	"github.com/tiputa/apuri/internal/models"
	"gorm.io/gorm"
)

// Sweeper 负责消息的保留策略：超过保留时长的消息被硬删除，没有归档。
// 房间读取前的懒清理和独立的全局定时清理都走同一个删除原语。
type Sweeper struct {
	db        *gorm.DB
	now       clock.Func
	retention time.Duration
}

func NewSweeper(db *gorm.DB, now clock.Func, retention time.Duration) *Sweeper {
	if now == nil {
		now = time.Now
	}
	return &Sweeper{db: db, now: now, retention: retention}
}

// Cutoff 返回当前时刻的过期界限，created_at 早于该值的消息视为过期。
func (s *Sweeper) Cutoff() time.Time {
	return s.now().Add(-s.retention)
}

// SweepRoom 删除单个房间内已过期的消息，返回删除行数。房间打开时调用。
func (s *Sweeper) SweepRoom(roomID uint) (int64, error) {
	res := s.db.Where("room_id = ? AND created_at < ?", roomID, s.Cutoff()).Delete(&models.Message{})
	if res.Error != nil {
		return 0, res.Error
	}
	metrics.MessagesSweptTotal.WithLabelValues("room").Add(float64(res.RowsAffected))
	return res.RowsAffected, nil
}

// SweepAll 删除全系统已过期的房间消息和私信，返回删除总数。由 cmd/sweeper 周期触发。
func (s *Sweeper) SweepAll() (int64, error) {
	cutoff := s.Cutoff()

	roomRes := s.db.Where("created_at < ?", cutoff).Delete(&models.Message{})
	if roomRes.Error != nil {
		return 0, roomRes.Error
	}
	metrics.MessagesSweptTotal.WithLabelValues("room").Add(float64(roomRes.RowsAffected))

	dmRes := s.db.Where("created_at < ?", cutoff).Delete(&models.DirectMessage{})
	if dmRes.Error != nil {
		return roomRes.RowsAffected, dmRes.Error
	}
	metrics.MessagesSweptTotal.WithLabelValues("dm").Add(float64(dmRes.RowsAffected))

	return roomRes.RowsAffected + dmRes.RowsAffected, nil
}
