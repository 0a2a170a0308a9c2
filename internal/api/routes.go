package api

import (
	"github.com/gin-gonic/gin"
	"github.com/pokerjest/modlistAutoTool/internal/scheduler"
	"github.com/pokerjest/modlistAutoTool/internal/store"
)

// Server 本地状态 API，跑下载会话时旁挂一个只读视图 + 放行按钮
// 纯 JSON，不渲染任何页面
type Server struct {
	engine *scheduler.Engine
	store  *store.Store
}

func NewServer(eng *scheduler.Engine, st *store.Store) *Server {
	return &Server{engine: eng, store: st}
}

func (s *Server) InitRoutes(r *gin.Engine) {
	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/status", s.StatusHandler)
		apiGroup.GET("/records", s.RecordsHandler)
		apiGroup.POST("/advance", s.AdvanceHandler)
		apiGroup.GET("/events", SSEHandler)

		apiGroup.POST("/backup/s3", s.UploadBackupHandler)
		apiGroup.POST("/restore/s3", s.RestoreBackupHandler)
	}
}
