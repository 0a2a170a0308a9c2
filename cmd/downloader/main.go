package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"

	"github.com/pokerjest/modlistAutoTool/internal/api"
	"github.com/pokerjest/modlistAutoTool/internal/backup"
	"github.com/pokerjest/modlistAutoTool/internal/config"
	"github.com/pokerjest/modlistAutoTool/internal/db"
	"github.com/pokerjest/modlistAutoTool/internal/event"
	"github.com/pokerjest/modlistAutoTool/internal/fetcher"
	"github.com/pokerjest/modlistAutoTool/internal/filter"
	"github.com/pokerjest/modlistAutoTool/internal/manifest"
	"github.com/pokerjest/modlistAutoTool/internal/model"
	"github.com/pokerjest/modlistAutoTool/internal/nexus"
	"github.com/pokerjest/modlistAutoTool/internal/renamer"
	"github.com/pokerjest/modlistAutoTool/internal/scheduler"
	"github.com/pokerjest/modlistAutoTool/internal/store"
	"github.com/pokerjest/modlistAutoTool/internal/verify"
)

// 退出码约定：0 全部完成，1 配置/环境级错误，2 部分记录未完成 (可重跑续传)
const (
	exitOK      = 0
	exitFatal   = 1
	exitPartial = 2
)

func main() {
	manifestPath := flag.String("manifest", "", "modlist manifest JSON 路径 (必填)")
	destDir := flag.String("dest", "", "下载目标目录，覆盖配置里的 download.dest")
	configPath := flag.String("config", ".", "配置文件所在目录")
	manual := flag.Bool("manual", false, "每批结束后等待回车再继续")
	serve := flag.Bool("serve", false, "运行期间同时启动本地状态 API")
	renamePass := flag.Bool("rename-pass", false, "开跑前按哈希认领目录里改过名的文件")
	resetFailed := flag.Bool("reset-failed", false, "把历史 Failed 记录重置为 Pending")
	backupAfter := flag.Bool("backup", false, "结束后把状态库上传到 S3 (需配置 backup 段)")
	flag.Parse()

	os.Exit(run(*manifestPath, *destDir, *configPath, *manual, *serve, *renamePass, *resetFailed, *backupAfter))
}

func run(manifestPath, destDir, configPath string, manual, serve, renamePass, resetFailed, backupAfter bool) int {
	if manifestPath == "" {
		log.Println("missing -manifest")
		flag.Usage()
		return exitFatal
	}

	// 1. Load Config
	if err := config.LoadConfig(configPath); err != nil {
		log.Printf("Failed to load config: %v", err)
		return exitFatal
	}
	cfg := config.AppConfig
	if destDir == "" {
		destDir = cfg.Download.Dest
	}
	if destDir == "" {
		log.Println("no destination directory: set -dest or download.dest")
		return exitFatal
	}

	// 2. 清单解析失败属于致命错误，不进入任何下载
	records, skipped, err := manifest.Parse(manifestPath)
	if err != nil {
		log.Printf("manifest %s: %v", manifestPath, err)
		return exitFatal
	}
	if len(skipped) > 0 {
		log.Printf("manifest: skipped %d malformed entries", len(skipped))
	}
	// 个别清单条目缺游戏域名时退到配置值
	if cfg.Nexus.Game != "" {
		for i := range records {
			if records[i].GameName == "" {
				records[i].GameName = cfg.Nexus.Game
			}
		}
	}
	log.Printf("manifest: %d records from %s", len(records), manifestPath)

	algo, err := verify.ParseAlgorithm(cfg.Download.HashAlgorithm)
	if err != nil {
		log.Printf("config download.hash_algorithm: %v", err)
		return exitFatal
	}
	if err := verify.CheckManifestShape(algo, records); err != nil {
		log.Printf("manifest hashes do not match %s: %v", cfg.Download.HashAlgorithm, err)
		return exitFatal
	}

	// 3. 目标目录必须在开跑前就可写
	if err := ensureWritable(destDir); err != nil {
		log.Printf("destination %s: %v", destDir, err)
		return exitFatal
	}
	stagingDir := filepath.Join(destDir, ".staging")
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		log.Printf("staging %s: %v", stagingDir, err)
		return exitFatal
	}

	// 4. 链接来源：http 模式必须有合法会话；delegate 模式鉴权在浏览器侧
	var links scheduler.LinkGenerator
	var fetch fetcher.Fetcher
	switch cfg.Download.Fetcher {
	case "delegate":
		links = nexus.NewPageLinker(cfg.Nexus.BaseURL)
		fetch = fetcher.NewDelegateFetcher(destDir, time.Duration(cfg.Download.DelegateTimeout)*time.Second)
	case "http", "":
		client, err := nexus.NewClient(cfg.Nexus.BaseURL, cfg.Nexus.Session, cfg.Nexus.GameID)
		if err != nil {
			log.Printf("nexus session: %v", err)
			return exitFatal
		}
		links = client
		fetch = fetcher.NewHTTPFetcher(cfg.Download.RetryLimit)
	default:
		log.Printf("unknown fetcher %q", cfg.Download.Fetcher)
		return exitFatal
	}

	// 5. 状态库
	absPath, _ := filepath.Abs(cfg.Database.Path)
	log.Printf("Initializing database at: %s", absPath)
	if err := db.InitDB(cfg.Database.Path); err != nil {
		log.Printf("Failed to init database: %v", err)
		return exitFatal
	}
	defer db.CloseDB()

	st := store.New(db.DB)
	if n, err := st.Recover(); err != nil {
		log.Printf("crash recovery: %v", err)
		return exitFatal
	} else if n > 0 {
		log.Printf("crash recovery: %d in-flight records reset to pending", n)
	}
	if resetFailed {
		n, err := st.ResetFailed()
		if err != nil {
			log.Printf("reset failed records: %v", err)
			return exitFatal
		}
		log.Printf("reset %d failed records to pending", n)
	}

	// 坏条目落库留痕，结束时和下载失败一起进汇总
	for _, sk := range skipped {
		if err := st.MarkSkipped(sk.ID, sk.Name); err != nil {
			log.Printf("failed to record skipped entry %s: %v", sk.ID, err)
		}
	}

	fs := afero.NewOsFs()
	ver := verify.New(fs, algo)

	// 6. 可选：先把浏览器手动下载、名字对不上的文件按哈希认领掉
	if renamePass {
		res, err := renamer.New(fs, st, ver, destDir).Run(records)
		if err != nil {
			log.Printf("rename pass: %v", err)
			return exitFatal
		}
		log.Printf("rename pass: claimed %d files, %d orphans left alone", res.Renamed, res.Orphans)
	}

	// 7. 过滤出真正要下载的部分
	part, err := filter.New(fs, st, ver, destDir).Partition(records)
	if err != nil {
		log.Printf("filter: %v", err)
		return exitFatal
	}
	log.Printf("filter: %d pending, %d already satisfied, %d stale files cleaned",
		len(part.Pending), len(part.Satisfied), part.Cleaned)

	engine := scheduler.New(st, links, fetch, ver, event.GlobalBus, scheduler.Config{
		DestDir:         destDir,
		StagingDir:      stagingDir,
		BatchSize:       cfg.Download.BatchSize,
		InterBatchDelay: time.Duration(cfg.Download.InterBatchDelay) * time.Second,
		Manual:          manual,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if serve {
		startAPI(engine, st, cfg.Server.Mode, cfg.Server.Port)
	}
	if manual {
		go advanceOnEnter(ctx, engine)
		log.Println("manual pacing on: press Enter after each batch to continue")
	}

	summary, runErr := engine.Run(ctx, part.Pending, len(part.Satisfied))
	if runErr != nil {
		log.Printf("run interrupted: %v", runErr)
	}

	for _, sk := range skipped {
		summary.Total++
		summary.Skipped++
		summary.Records = append(summary.Records, model.RecordResult{
			RecordID: sk.ID,
			Name:     sk.Name,
			Status:   model.StatusSkipped,
			Reason:   model.ReasonManifest,
		})
	}

	printSummary(summary)

	if backupAfter {
		uploadBackup(cfg.Backup)
	}

	if runErr != nil || summary.Incomplete() {
		return exitPartial
	}
	return exitOK
}

// ensureWritable 建目录并实地写一个探针文件，权限问题要在第一批之前暴露
func ensureWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	probe, err := os.CreateTemp(dir, ".write-probe-*")
	if err != nil {
		return err
	}
	name := probe.Name()
	probe.Close()
	return os.Remove(name)
}

func startAPI(engine *scheduler.Engine, st *store.Store, mode string, port int) {
	gin.SetMode(mode)
	r := gin.Default()
	api.NewServer(engine, st).InitRoutes(r)
	addr := fmt.Sprintf(":%d", port)
	go func() {
		log.Printf("status API on %s", addr)
		if err := r.Run(addr); err != nil {
			log.Printf("status API stopped: %v", err)
		}
	}()
}

// advanceOnEnter 把标准输入的回车转成推进信号
func advanceOnEnter(ctx context.Context, engine *scheduler.Engine) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		engine.Advance()
	}
}

func printSummary(s *model.RunSummary) {
	log.Printf("done: %d total, %d completed, %d satisfied before run, %d failed, %d skipped, %d still pending",
		s.Total, s.Completed, s.Satisfied, s.Failed, s.Skipped, s.Pending)
	for _, r := range s.Records {
		if r.Reason != "" {
			log.Printf("  %-12s %s (%s): %s", r.Status, r.Name, r.RecordID, r.Reason)
		} else {
			log.Printf("  %-12s %s (%s)", r.Status, r.Name, r.RecordID)
		}
	}
}

func uploadBackup(cfg config.BackupConfig) {
	if !backup.Enabled(cfg) {
		log.Println("backup: no endpoint configured, skipping")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	client, err := backup.NewClient(ctx, cfg)
	if err != nil {
		log.Printf("backup: %v", err)
		return
	}
	key, err := client.UploadState(ctx, db.CurrentDBPath)
	if err != nil {
		log.Printf("backup upload: %v", err)
		return
	}
	log.Printf("backup uploaded as %s", key)
}
