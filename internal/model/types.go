package model

import (
	"gorm.io/gorm"
)

// DownloadRecord 代表 modlist 里的一个档案条目
// 解析 modlist 时创建一次，之后只读，不会重算
type DownloadRecord struct {
	ID           string            // 稳定标识: "<modID>-<fileID>"
	ModID        string            // Nexus mod ID
	FileID       string            // Nexus file ID
	GameName     string            // 游戏域名 (如 "skyrimspecialedition")
	Name         string            // 目标文件名 (落盘用)
	ExpectedHash string            // modlist 声明的哈希 (base64 xxh64)，可能为空
	ExpectedSize int64             // 字节数，0 表示未知
	Version      string            // mod 版本 (仅展示用)
	Meta         map[string]string // Meta 字段原样保留，引擎不解释
}

// DownloadState 持久化的每条记录状态，resume/去重的唯一依据
// UpdatedAt (gorm.Model) 即 lastUpdated
type DownloadState struct {
	gorm.Model
	RecordID     string `gorm:"uniqueIndex"` // DownloadRecord.ID
	Status       DownloadStatus
	Reason       FailReason // Status 为 Failed/Skipped 时的原因
	VerifiedHash string     // 校验通过后的实际哈希
	AttemptCount int        // 进入 InFlight 的次数
	FileName     string     // 对应的目标文件名，方便排查
}

// RunSummary 一次运行结束时的汇总
type RunSummary struct {
	Total     int
	Completed int
	Failed    int
	Skipped   int
	Satisfied int            // 开跑前就已满足、未进入任何批次的记录数
	Pending   int            // 运行结束仍未终态的记录数 (中断时)
	Records   []RecordResult // 非 Completed 记录的明细
}

// RecordResult 单条记录的最终结果
type RecordResult struct {
	RecordID string         `json:"record_id"`
	Name     string         `json:"name"`
	Status   DownloadStatus `json:"status"`
	Reason   FailReason     `json:"reason,omitempty"`
}

// Incomplete returns true if any record did not reach Completed.
func (s *RunSummary) Incomplete() bool {
	return s.Failed > 0 || s.Skipped > 0 || s.Pending > 0
}
