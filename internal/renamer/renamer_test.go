package renamer

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/pokerjest/modlistAutoTool/internal/model"
	"github.com/pokerjest/modlistAutoTool/internal/store"
	"github.com/pokerjest/modlistAutoTool/internal/verify"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const abcHash = "mQl3rfUsvEQ="

func newTestRenamer(t *testing.T) (*Renamer, *store.Store, afero.Fs) {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(&model.DownloadState{}))

	st := store.New(gdb)
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/dest", 0755))
	return New(fs, st, verify.New(fs, verify.AlgoXXH64), "/dest"), st, fs
}

func TestRunClaimsHashMatchedFile(t *testing.T) {
	r, st, fs := newTestRenamer(t)

	// 浏览器下载时用了别的名字
	require.NoError(t, afero.WriteFile(fs, "/dest/SkyUI_5_2_SE-12604-5-2SE (1).7z", []byte("abc"), 0644))

	records := []model.DownloadRecord{
		{ID: "12604-35407", Name: "SkyUI_5_2_SE.7z", ExpectedHash: abcHash},
	}

	res, err := r.Run(records)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Renamed)
	assert.Zero(t, res.Orphans)

	exists, _ := afero.Exists(fs, "/dest/SkyUI_5_2_SE.7z")
	assert.True(t, exists)

	entry, err := st.Get("12604-35407")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, model.StatusCompleted, entry.Status)
	assert.Equal(t, abcHash, entry.VerifiedHash)
}

func TestRunLeavesOrphans(t *testing.T) {
	r, _, fs := newTestRenamer(t)

	require.NoError(t, afero.WriteFile(fs, "/dest/random.bin", []byte("unrelated"), 0644))

	res, err := r.Run([]model.DownloadRecord{
		{ID: "1-1", Name: "a.7z", ExpectedHash: abcHash},
	})
	require.NoError(t, err)
	assert.Zero(t, res.Renamed)
	assert.Equal(t, 1, res.Orphans)

	// 认不出的文件不许动
	exists, _ := afero.Exists(fs, "/dest/random.bin")
	assert.True(t, exists)
}

func TestRunSkipsFilesAlreadyNamedCorrectly(t *testing.T) {
	r, _, fs := newTestRenamer(t)

	require.NoError(t, afero.WriteFile(fs, "/dest/a.7z", []byte("abc"), 0644))

	res, err := r.Run([]model.DownloadRecord{
		{ID: "1-1", Name: "a.7z", ExpectedHash: abcHash},
	})
	require.NoError(t, err)
	assert.Zero(t, res.Renamed)
	assert.Zero(t, res.Orphans)
}
