package store

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pokerjest/modlistAutoTool/internal/model"
	"gorm.io/gorm"
)

// Store 封装下载状态的持久化，引擎是它唯一的写入方
// 同一 RecordID 的变更由 mu 串行化；sqlite 本身保证单条写入的持久性
type Store struct {
	db *gorm.DB
	mu sync.Mutex
}

func New(gdb *gorm.DB) *Store {
	return &Store{db: gdb}
}

// Update carries the optional fields of a status transition.
type Update struct {
	Reason       model.FailReason
	VerifiedHash string
	FileName     string
}

// Load reads all persisted entries keyed by record ID.
func (s *Store) Load() (map[string]*model.DownloadState, error) {
	var entries []model.DownloadState
	if err := s.db.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}

	result := make(map[string]*model.DownloadState, len(entries))
	for i := range entries {
		result[entries[i].RecordID] = &entries[i]
	}
	return result, nil
}

// Get returns the entry for a record, or nil if the record was never seen.
func (s *Store) Get(recordID string) (*model.DownloadState, error) {
	var entry model.DownloadState
	err := s.db.Where("record_id = ?", recordID).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// Transition upserts the entry for recordID and sets its status.
// 进入 InFlight 时递增 AttemptCount；调用返回即已落盘
func (s *Store) Transition(recordID string, status model.DownloadStatus, upd *Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entry model.DownloadState
	err := s.db.Where("record_id = ?", recordID).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		entry = model.DownloadState{RecordID: recordID}
	} else if err != nil {
		return fmt.Errorf("failed to look up state for %s: %w", recordID, err)
	}

	entry.Status = status
	if status == model.StatusInFlight {
		entry.AttemptCount++
	}
	if upd != nil {
		if upd.Reason != "" {
			entry.Reason = upd.Reason
		}
		if upd.VerifiedHash != "" {
			entry.VerifiedHash = upd.VerifiedHash
		}
		if upd.FileName != "" {
			entry.FileName = upd.FileName
		}
	}
	// 非失败终态清掉旧的失败原因
	if status == model.StatusCompleted || status == model.StatusPending {
		entry.Reason = ""
	}

	if err := s.db.Save(&entry).Error; err != nil {
		return fmt.Errorf("failed to persist state for %s: %w", recordID, err)
	}
	return nil
}

// Recover flips orphaned InFlight entries back to Pending.
// 崩溃后残留的 InFlight 等价于从未开始，重启时必须先调用
func (s *Store) Recover() (int64, error) {
	res := s.db.Model(&model.DownloadState{}).
		Where("status = ?", model.StatusInFlight).
		Update("status", model.StatusPending)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to recover in-flight entries: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// MarkSkipped records a manifest entry that never became a download record,
// 坏条目也要在状态库和汇总里留痕，而不是只打一行日志
func (s *Store) MarkSkipped(recordID, fileName string) error {
	return s.Transition(recordID, model.StatusSkipped, &Update{
		Reason:   model.ReasonManifest,
		FileName: fileName,
	})
}

// ResetFailed puts every Failed entry back to Pending for an explicit re-run.
func (s *Store) ResetFailed() (int64, error) {
	res := s.db.Model(&model.DownloadState{}).
		Where("status = ?", model.StatusFailed).
		Updates(map[string]interface{}{"status": model.StatusPending, "reason": ""})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to reset failed entries: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// CountByStatus returns how many entries currently hold the given status.
func (s *Store) CountByStatus(status model.DownloadStatus) (int64, error) {
	var count int64
	err := s.db.Model(&model.DownloadState{}).Where("status = ?", status).Count(&count).Error
	return count, err
}
