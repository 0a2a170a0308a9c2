package model

// DownloadStatus represents the lifecycle state of a download record
type DownloadStatus string

const (
	// StatusPending means the record is waiting for a batch slot
	StatusPending DownloadStatus = "pending"

	// StatusInFlight means a fetch attempt is currently active.
	// 进程正常结束后不应残留 InFlight；重启时 Recover 会把它重置为 Pending
	StatusInFlight DownloadStatus = "in_flight"

	// StatusCompleted means the file was downloaded and verified
	StatusCompleted DownloadStatus = "completed"

	// StatusFailed means the fetch or verification failed
	StatusFailed DownloadStatus = "failed"

	// StatusSkipped means the record was deliberately not attempted
	StatusSkipped DownloadStatus = "skipped"
)

func (s DownloadStatus) String() string {
	return string(s)
}

// IsTerminal returns true if the status will not change without a new run.
func (s DownloadStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusSkipped
}

// FailReason classifies why a record ended Failed or Skipped
type FailReason string

const (
	ReasonTransient    FailReason = "transient"     // 网络类错误，重试次数耗尽
	ReasonHashMismatch FailReason = "hash_mismatch" // 下载内容与声明哈希不符
	ReasonAuthRejected FailReason = "auth_rejected" // 远端拒绝了会话凭证
	ReasonNotFound     FailReason = "not_found"     // 文件已下架 (404 类)
	ReasonLinkFailed   FailReason = "link_failed"   // 生成下载链接失败
	ReasonDestination  FailReason = "destination"   // 本地写入/重命名失败
	ReasonManifest     FailReason = "manifest"      // 条目缺少必要字段被跳过
)
