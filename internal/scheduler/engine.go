package scheduler

import (
	"context"
	"errors"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/pokerjest/modlistAutoTool/internal/event"
	"github.com/pokerjest/modlistAutoTool/internal/fetcher"
	"github.com/pokerjest/modlistAutoTool/internal/model"
	"github.com/pokerjest/modlistAutoTool/internal/nexus"
	"github.com/pokerjest/modlistAutoTool/internal/store"
	"github.com/pokerjest/modlistAutoTool/internal/verify"
)

// State 调度器所处的阶段
type State string

const (
	StateIdle        State = "idle"
	StateBatching    State = "batching"
	StateDispatching State = "dispatching"
	StateAwaiting    State = "awaiting_completion"
	StateDone        State = "done"
)

// LinkGenerator 为一条记录生成已认证的下载目标
type LinkGenerator interface {
	GenerateDownloadLink(ctx context.Context, rec model.DownloadRecord) (nexus.Link, error)
}

// Config 调度参数
type Config struct {
	DestDir         string
	StagingDir      string
	BatchSize       int           // 每批并发的记录数上限，也是全局并发上限
	InterBatchDelay time.Duration // 批次之间的最小停顿
	Manual          bool          // true 时每批结束后等待 Advance 信号
}

// Engine 按批驱动下载：取一批 → 标记 InFlight → 生成链接 → 抓取 →
// 校验促升 → 等整批终态，再进入下一批。任何时刻 InFlight 数 ≤ BatchSize
type Engine struct {
	store *store.Store
	links LinkGenerator
	fetch fetcher.Fetcher
	ver   *verify.Verifier
	bus   event.Bus
	cfg   Config

	advance chan struct{}

	mu       sync.Mutex
	state    State
	progress Progress
}

// Progress 对外暴露的即时进度
type Progress struct {
	State        State `json:"state"`
	Batch        int   `json:"batch"`
	TotalBatches int   `json:"total_batches"`
	Total        int   `json:"total"`
	Completed    int   `json:"completed"`
	Failed       int   `json:"failed"`
	Skipped      int   `json:"skipped"`
	Satisfied    int   `json:"satisfied"`
}

func New(st *store.Store, links LinkGenerator, f fetcher.Fetcher, ver *verify.Verifier, bus event.Bus, cfg Config) *Engine {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5
	}
	return &Engine{
		store:   st,
		links:   links,
		fetch:   f,
		ver:     ver,
		bus:     bus,
		cfg:     cfg,
		advance: make(chan struct{}, 1),
		state:   StateIdle,
	}
}

// Advance 人工放行下一批 ("按回车继续")，manual 模式下生效
func (e *Engine) Advance() {
	select {
	case e.advance <- struct{}{}:
	default:
	}
}

// Snapshot returns the current progress for the status API.
func (e *Engine) Snapshot() Progress {
	e.mu.Lock()
	defer e.mu.Unlock()
	p := e.progress
	p.State = e.state
	return p
}

type recordOutcome struct {
	rec    model.DownloadRecord
	status model.DownloadStatus
	reason model.FailReason
}

// Run processes pending records in manifest order, batch by batch.
// satisfied 是过滤阶段已经排除的记录数，只进汇总不进批次
func (e *Engine) Run(ctx context.Context, pending []model.DownloadRecord, satisfied int) (*model.RunSummary, error) {
	summary := &model.RunSummary{
		Total:     len(pending) + satisfied,
		Satisfied: satisfied,
		Completed: satisfied,
	}

	if len(pending) == 0 {
		e.setState(StateDone)
		e.bus.Publish(event.EventRunComplete, summary)
		return summary, nil
	}

	totalBatches := (len(pending) + e.cfg.BatchSize - 1) / e.cfg.BatchSize
	e.mu.Lock()
	e.progress = Progress{TotalBatches: totalBatches, Total: summary.Total, Satisfied: satisfied, Completed: satisfied}
	e.mu.Unlock()

	for batchNo := 0; batchNo*e.cfg.BatchSize < len(pending); batchNo++ {
		e.setState(StateBatching)

		start := batchNo * e.cfg.BatchSize
		end := start + e.cfg.BatchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]

		e.mu.Lock()
		e.progress.Batch = batchNo + 1
		e.mu.Unlock()

		log.Printf("scheduler: batch %d/%d (%d records)", batchNo+1, totalBatches, len(batch))
		e.bus.Publish(event.EventBatchStart, event.BatchStartPayload{
			Batch:   batchNo + 1,
			Total:   totalBatches,
			Records: len(batch),
		})

		e.setState(StateDispatching)
		outcomes := e.runBatch(ctx, batch)

		for _, out := range outcomes {
			e.applyOutcome(summary, out)
		}

		if ctx.Err() != nil {
			summary.Pending = summary.Total - summary.Completed - summary.Failed - summary.Skipped
			return summary, ctx.Err()
		}

		// 还有剩余工作时，批次间停顿/等待放行
		if end < len(pending) {
			e.setState(StateAwaiting)
			if err := e.pause(ctx); err != nil {
				summary.Pending = summary.Total - summary.Completed - summary.Failed - summary.Skipped
				return summary, err
			}
		}
	}

	e.setState(StateDone)
	e.bus.Publish(event.EventRunComplete, summary)
	return summary, nil
}

// runBatch dispatches one batch and blocks until every record is terminal.
// WaitGroup 是硬栅栏：下一批绝不会在本批收尾前启动
func (e *Engine) runBatch(ctx context.Context, batch []model.DownloadRecord) []recordOutcome {
	outcomes := make([]recordOutcome, len(batch))
	var wg sync.WaitGroup

	for i, rec := range batch {
		wg.Add(1)
		go func(i int, rec model.DownloadRecord) {
			defer wg.Done()
			outcomes[i] = e.processRecord(ctx, rec)
		}(i, rec)
	}

	wg.Wait()
	return outcomes
}

func (e *Engine) processRecord(ctx context.Context, rec model.DownloadRecord) recordOutcome {
	if err := e.store.Transition(rec.ID, model.StatusInFlight, &store.Update{FileName: rec.Name}); err != nil {
		log.Printf("scheduler: failed to claim %s: %v", rec.ID, err)
		return recordOutcome{rec: rec, status: model.StatusFailed, reason: model.ReasonDestination}
	}

	out := e.attempt(ctx, rec)

	// 干净退出不留 InFlight：取消的记录回退为 Pending
	if out.status == model.StatusPending {
		if err := e.store.Transition(rec.ID, model.StatusPending, nil); err != nil {
			log.Printf("scheduler: failed to release %s: %v", rec.ID, err)
		}
		return out
	}

	upd := &store.Update{Reason: out.reason, FileName: rec.Name}
	if out.status == model.StatusCompleted {
		upd.VerifiedHash = rec.ExpectedHash
	}
	if err := e.store.Transition(rec.ID, out.status, upd); err != nil {
		log.Printf("scheduler: failed to record outcome for %s: %v", rec.ID, err)
	}

	e.bus.Publish(event.EventRecordDone, event.RecordDonePayload{
		RecordID: rec.ID,
		Name:     rec.Name,
		Status:   out.status.String(),
		Reason:   string(out.reason),
	})
	return out
}

func (e *Engine) attempt(ctx context.Context, rec model.DownloadRecord) recordOutcome {
	link, err := e.links.GenerateDownloadLink(ctx, rec)
	if err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return recordOutcome{rec: rec, status: model.StatusPending}
		}
		log.Printf("scheduler: link generation failed for %s: %v", rec.ID, err)
		return recordOutcome{rec: rec, status: model.StatusFailed, reason: classifyLinkErr(err)}
	}

	stagingPath := filepath.Join(e.cfg.StagingDir, rec.Name+".part")
	if err := e.fetch.Fetch(ctx, link, stagingPath); err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return recordOutcome{rec: rec, status: model.StatusPending}
		}
		log.Printf("scheduler: fetch failed for %s: %v", rec.ID, err)
		return recordOutcome{rec: rec, status: model.StatusFailed, reason: classifyFetchErr(err)}
	}

	destPath := filepath.Join(e.cfg.DestDir, rec.Name)
	if _, err := e.ver.Promote(stagingPath, destPath, rec); err != nil {
		log.Printf("scheduler: verification failed for %s: %v", rec.ID, err)
		reason := model.ReasonDestination
		if errors.Is(err, verify.ErrHashMismatch) || errors.Is(err, verify.ErrSizeMismatch) {
			// 哈希不符不自动重试：对着坏掉的远端副本反复拉没有意义
			reason = model.ReasonHashMismatch
		}
		return recordOutcome{rec: rec, status: model.StatusFailed, reason: reason}
	}

	return recordOutcome{rec: rec, status: model.StatusCompleted}
}

func (e *Engine) applyOutcome(summary *model.RunSummary, out recordOutcome) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch out.status {
	case model.StatusCompleted:
		summary.Completed++
		e.progress.Completed++
	case model.StatusFailed:
		summary.Failed++
		e.progress.Failed++
	case model.StatusSkipped:
		summary.Skipped++
		e.progress.Skipped++
	case model.StatusPending:
		// 取消回退，进入 Pending 汇总
		return
	}

	if out.status != model.StatusCompleted {
		summary.Records = append(summary.Records, model.RecordResult{
			RecordID: out.rec.ID,
			Name:     out.rec.Name,
			Status:   out.status,
			Reason:   out.reason,
		})
	}
}

func (e *Engine) pause(ctx context.Context) error {
	if e.cfg.Manual {
		log.Printf("scheduler: batch finished, waiting for advance signal")
		select {
		case <-e.advance:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if e.cfg.InterBatchDelay <= 0 {
		return nil
	}
	select {
	case <-time.After(e.cfg.InterBatchDelay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

func classifyLinkErr(err error) model.FailReason {
	switch {
	case errors.Is(err, nexus.ErrAuthRejected):
		return model.ReasonAuthRejected
	case errors.Is(err, nexus.ErrNotFound):
		return model.ReasonNotFound
	default:
		return model.ReasonLinkFailed
	}
}

func classifyFetchErr(err error) model.FailReason {
	switch {
	case errors.Is(err, nexus.ErrAuthRejected):
		return model.ReasonAuthRejected
	case errors.Is(err, nexus.ErrNotFound):
		return model.ReasonNotFound
	default:
		return model.ReasonTransient
	}
}
