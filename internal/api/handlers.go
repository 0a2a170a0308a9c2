package api

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/pokerjest/modlistAutoTool/internal/model"
)

type recordView struct {
	RecordID string `json:"record_id"`
	FileName string `json:"file_name"`
	Status   string `json:"status"`
	Reason   string `json:"reason,omitempty"`
	Attempts int    `json:"attempts"`
}

// StatusHandler 当前调度进度
func (s *Server) StatusHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Snapshot())
}

// RecordsHandler 全量记录状态，可用 ?status=failed 过滤
func (s *Server) RecordsHandler(c *gin.Context) {
	entries, err := s.store.Load()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	filter := c.Query("status")
	views := make([]recordView, 0, len(entries))
	for _, entry := range entries {
		if filter != "" && entry.Status != model.DownloadStatus(filter) {
			continue
		}
		views = append(views, recordView{
			RecordID: entry.RecordID,
			FileName: entry.FileName,
			Status:   entry.Status.String(),
			Reason:   string(entry.Reason),
			Attempts: entry.AttemptCount,
		})
	}

	// map 遍历无序，输出前排一下方便肉眼对
	sort.Slice(views, func(i, j int) bool { return views[i].RecordID < views[j].RecordID })

	c.JSON(http.StatusOK, gin.H{"records": views, "count": len(views)})
}

// AdvanceHandler 人工放行下一批，等价于终端里按回车
func (s *Server) AdvanceHandler(c *gin.Context) {
	s.engine.Advance()
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
