package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pokerjest/modlistAutoTool/internal/backup"
	"github.com/pokerjest/modlistAutoTool/internal/config"
	"github.com/pokerjest/modlistAutoTool/internal/db"
)

// UploadBackupHandler 把当前状态库推到 S3 兼容存储
func (s *Server) UploadBackupHandler(c *gin.Context) {
	cfg := config.AppConfig.Backup
	if !backup.Enabled(cfg) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "backup is not configured"})
		return
	}

	client, err := backup.NewClient(c.Request.Context(), cfg)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	key, err := client.UploadState(c.Request.Context(), db.CurrentDBPath)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "key": key})
}

// RestoreBackupHandler 把最近一次备份拉回本地
// 只落盘到 <db>.restored，替换动作留给用户在引擎停下后做
func (s *Server) RestoreBackupHandler(c *gin.Context) {
	cfg := config.AppConfig.Backup
	if !backup.Enabled(cfg) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "backup is not configured"})
		return
	}

	client, err := backup.NewClient(c.Request.Context(), cfg)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	key := c.Query("key")
	if key == "" {
		key, err = client.LatestKey(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if key == "" {
			c.JSON(http.StatusNotFound, gin.H{"error": "no backups found"})
			return
		}
	}

	dest := db.CurrentDBPath + ".restored"
	if err := client.DownloadState(c.Request.Context(), key, dest); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "key": key, "path": dest})
}
