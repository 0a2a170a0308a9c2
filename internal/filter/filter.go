package filter

import (
	"fmt"
	"log"
	"path/filepath"

	"github.com/pokerjest/modlistAutoTool/internal/model"
	"github.com/pokerjest/modlistAutoTool/internal/store"
	"github.com/pokerjest/modlistAutoTool/internal/verify"
	"github.com/spf13/afero"
)

// Filter 决定每条记录是否还需要下载
// 只读状态库和文件系统，不碰网络，可以随时重复执行
type Filter struct {
	fs      afero.Fs
	store   *store.Store
	ver     *verify.Verifier
	destDir string
}

// Result 一次过滤的输出，Pending 保持清单顺序
type Result struct {
	Pending   []model.DownloadRecord
	Satisfied []model.DownloadRecord
	Cleaned   int // 删除的残留/损坏文件数
}

func New(fs afero.Fs, st *store.Store, ver *verify.Verifier, destDir string) *Filter {
	return &Filter{fs: fs, store: st, ver: ver, destDir: destDir}
}

// Partition classifies records into already-satisfied and pending, in manifest order.
func (f *Filter) Partition(records []model.DownloadRecord) (Result, error) {
	var result Result

	entries, err := f.store.Load()
	if err != nil {
		return result, err
	}

	for _, rec := range records {
		destPath := filepath.Join(f.destDir, rec.Name)
		entry := entries[rec.ID]

		exists, err := afero.Exists(f.fs, destPath)
		if err != nil {
			return result, fmt.Errorf("failed to stat %s: %w", destPath, err)
		}

		if exists {
			ok, err := f.ver.Matches(destPath, rec)
			if err != nil {
				return result, fmt.Errorf("failed to check %s: %w", destPath, err)
			}
			if ok {
				// 状态库没记录也认账 (旧版本下载的文件)，补记一条 Completed
				if entry == nil || entry.Status != model.StatusCompleted {
					if err := f.store.Transition(rec.ID, model.StatusCompleted, &store.Update{
						VerifiedHash: rec.ExpectedHash,
						FileName:     rec.Name,
					}); err != nil {
						return result, err
					}
				}
				result.Satisfied = append(result.Satisfied, rec)
				continue
			}

			// 残留或损坏的文件，删掉保证后续下载是干净的
			log.Printf("filter: removing stale file %s", destPath)
			if err := f.fs.Remove(destPath); err != nil {
				return result, fmt.Errorf("failed to remove stale file %s: %w", destPath, err)
			}
			result.Cleaned++
		} else if entry != nil && entry.Status == model.StatusCompleted {
			// 状态说完成但文件没了，照常重下
			log.Printf("filter: %s recorded completed but missing on disk, re-downloading", rec.Name)
		}

		if err := f.store.Transition(rec.ID, model.StatusPending, &store.Update{FileName: rec.Name}); err != nil {
			return result, err
		}
		result.Pending = append(result.Pending, rec)
	}

	return result, nil
}
