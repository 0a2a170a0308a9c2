package renamer

import (
	"fmt"
	"log"
	"path/filepath"

	"github.com/pokerjest/modlistAutoTool/internal/model"
	"github.com/pokerjest/modlistAutoTool/internal/store"
	"github.com/pokerjest/modlistAutoTool/internal/verify"
	"github.com/spf13/afero"
)

// Renamer 收尾工序：浏览器 (delegate 模式) 落盘的文件名往往和清单不一致，
// 按内容哈希把目录里的孤儿文件认领回清单名，并补记 Completed
type Renamer struct {
	fs      afero.Fs
	store   *store.Store
	ver     *verify.Verifier
	destDir string
}

// Result 一次认领的结果
type Result struct {
	Renamed int
	Orphans int // 哈希对不上任何记录的文件数
}

func New(fs afero.Fs, st *store.Store, ver *verify.Verifier, destDir string) *Renamer {
	return &Renamer{fs: fs, store: st, ver: ver, destDir: destDir}
}

// Run scans the destination directory and renames hash-matched files to their manifest names.
func (r *Renamer) Run(records []model.DownloadRecord) (Result, error) {
	var result Result

	// 期望哈希 → 记录，没有哈希的记录没法认领
	byHash := make(map[string]model.DownloadRecord, len(records))
	wanted := make(map[string]bool, len(records))
	for _, rec := range records {
		wanted[rec.Name] = true
		if rec.ExpectedHash != "" {
			byHash[rec.ExpectedHash] = rec
		}
	}

	infos, err := afero.ReadDir(r.fs, r.destDir)
	if err != nil {
		return result, fmt.Errorf("failed to read destination directory: %w", err)
	}

	for _, info := range infos {
		if info.IsDir() || wanted[info.Name()] {
			continue
		}

		path := filepath.Join(r.destDir, info.Name())
		digest, err := r.ver.Digest(path)
		if err != nil {
			log.Printf("renamer: failed to hash %s: %v", info.Name(), err)
			continue
		}

		rec, ok := byHash[digest]
		if !ok {
			result.Orphans++
			continue
		}

		target := filepath.Join(r.destDir, rec.Name)
		if exists, _ := afero.Exists(r.fs, target); exists {
			// 目标名已经有验证过的文件，这份是多余的副本，不动它
			result.Orphans++
			continue
		}

		if err := r.fs.Rename(path, target); err != nil {
			return result, fmt.Errorf("failed to rename %s: %w", info.Name(), err)
		}
		log.Printf("renamer: %s -> %s", info.Name(), rec.Name)
		result.Renamed++

		if err := r.store.Transition(rec.ID, model.StatusCompleted, &store.Update{
			VerifiedHash: digest,
			FileName:     rec.Name,
		}); err != nil {
			return result, err
		}
	}

	return result, nil
}
