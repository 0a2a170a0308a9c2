package db

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pokerjest/modlistAutoTool/internal/model"
)

func TestInitDB_FreshPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "state.db")

	err := InitDB(path)
	require.NoError(t, err)
	defer CloseDB()

	require.NotNil(t, DB)
	assert.Equal(t, path, CurrentDBPath)

	// 迁移必须已经跑过，表可写
	err = DB.Create(&model.DownloadState{RecordID: "100-200", Status: "pending"}).Error
	assert.NoError(t, err)
}

func TestInitDB_CorruptStoreMovedAside(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.db")

	// 一个根本不是 sqlite 的文件
	require.NoError(t, os.WriteFile(path, []byte("this is not a database"), 0644))

	err := InitDB(path)
	require.NoError(t, err, "corrupt store should be recovered, not fatal")
	defer CloseDB()

	// 坏文件挪到了一边，没有被直接覆盖丢掉
	backups, err := filepath.Glob(path + ".corrupt.*")
	require.NoError(t, err)
	require.Len(t, backups, 1)
	raw, err := os.ReadFile(backups[0])
	require.NoError(t, err)
	assert.Equal(t, "this is not a database", string(raw))

	// 新库从空开始且可用
	var count int64
	require.NoError(t, DB.Model(&model.DownloadState{}).Count(&count).Error)
	assert.Zero(t, count)

	err = DB.Create(&model.DownloadState{RecordID: "100-200", Status: "pending"}).Error
	assert.NoError(t, err)
}
