package scheduler

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/pokerjest/modlistAutoTool/internal/event"
	"github.com/pokerjest/modlistAutoTool/internal/model"
	"github.com/pokerjest/modlistAutoTool/internal/nexus"
	"github.com/pokerjest/modlistAutoTool/internal/store"
	"github.com/pokerjest/modlistAutoTool/internal/verify"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// "abc" 的 xxh64 (seed 0) 小端序 base64
const abcHash = "mQl3rfUsvEQ="

type fakeLinks struct{}

func (fakeLinks) GenerateDownloadLink(_ context.Context, rec model.DownloadRecord) (nexus.Link, error) {
	return nexus.Link{RecordID: rec.ID, URL: "https://cdn.test/" + rec.ID}, nil
}

// fakeFetcher 把固定内容写进暂存文件，并记录并发度和调度顺序
type fakeFetcher struct {
	mu       sync.Mutex
	order    []string
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	content  string
	failWith map[string]error // recordID → 返回的错误
	delay    time.Duration
}

func (f *fakeFetcher) Fetch(ctx context.Context, link nexus.Link, stagingPath string) error {
	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		max := f.maxSeen.Load()
		if cur <= max || f.maxSeen.CompareAndSwap(max, cur) {
			break
		}
	}

	f.mu.Lock()
	f.order = append(f.order, link.RecordID)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err, ok := f.failWith[link.RecordID]; ok {
		return err
	}
	return os.WriteFile(stagingPath, []byte(f.content), 0644)
}

type testEnv struct {
	engine  *Engine
	store   *store.Store
	fetcher *fakeFetcher
	destDir string
}

func newTestEngine(t *testing.T, cfg Config, ff *fakeFetcher) *testEnv {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(&model.DownloadState{}))
	st := store.New(gdb)

	cfg.DestDir = t.TempDir()
	cfg.StagingDir = t.TempDir()

	ver := verify.New(afero.NewOsFs(), verify.AlgoXXH64)
	eng := New(st, fakeLinks{}, ff, ver, event.NewInMemoryBus(), cfg)
	return &testEnv{engine: eng, store: st, fetcher: ff, destDir: cfg.DestDir}
}

func makeRecords(n int) []model.DownloadRecord {
	records := make([]model.DownloadRecord, 0, n)
	for i := 1; i <= n; i++ {
		records = append(records, model.DownloadRecord{
			ID:           fmt.Sprintf("%d-%d", i, i*10),
			ModID:        fmt.Sprintf("%d", i),
			FileID:       fmt.Sprintf("%d", i*10),
			GameName:     "skyrimspecialedition",
			Name:         fmt.Sprintf("mod-%d.7z", i),
			ExpectedHash: abcHash,
			ExpectedSize: 3,
		})
	}
	return records
}

func TestRunAllSucceed(t *testing.T) {
	// Scenario: 5 条记录, batchSize=2 → 3 批 (2,2,1)，全部成功
	ff := &fakeFetcher{content: "abc"}
	env := newTestEngine(t, Config{BatchSize: 2}, ff)

	summary, err := env.engine.Run(context.Background(), makeRecords(5), 0)
	require.NoError(t, err)

	assert.Equal(t, 5, summary.Completed)
	assert.Zero(t, summary.Failed)
	assert.False(t, summary.Incomplete())

	// 每个文件都促升到了最终名
	for i := 1; i <= 5; i++ {
		_, err := os.Stat(env.destDir + fmt.Sprintf("/mod-%d.7z", i))
		assert.NoError(t, err)
	}

	// 状态库全部 Completed，且尝试次数各 1
	entries, err := env.store.Load()
	require.NoError(t, err)
	for id, entry := range entries {
		assert.Equal(t, model.StatusCompleted, entry.Status, id)
		assert.Equal(t, 1, entry.AttemptCount, id)
	}
}

func TestRunConcurrencyBound(t *testing.T) {
	ff := &fakeFetcher{content: "abc", delay: 20 * time.Millisecond}
	env := newTestEngine(t, Config{BatchSize: 2}, ff)

	_, err := env.engine.Run(context.Background(), makeRecords(6), 0)
	require.NoError(t, err)

	// 任意时刻同时进行的抓取数不得超过 batchSize
	assert.LessOrEqual(t, ff.maxSeen.Load(), int32(2))
}

func TestRunOrderingAcrossBatches(t *testing.T) {
	ff := &fakeFetcher{content: "abc"}
	env := newTestEngine(t, Config{BatchSize: 2}, ff)

	records := makeRecords(5)
	_, err := env.engine.Run(context.Background(), records, 0)
	require.NoError(t, err)

	// 批内并发顺序不定，但批与批之间保持清单顺序
	require.Len(t, ff.order, 5)
	batch1 := ff.order[0:2]
	batch2 := ff.order[2:4]
	assert.ElementsMatch(t, []string{"1-10", "2-20"}, batch1)
	assert.ElementsMatch(t, []string{"3-30", "4-40"}, batch2)
	assert.Equal(t, "5-50", ff.order[4])
}

func TestRunIsolatesNotFound(t *testing.T) {
	// Scenario: 一条记录 404，其余 4 条照常完成，结果是部分完成
	ff := &fakeFetcher{
		content:  "abc",
		failWith: map[string]error{"3-30": fmt.Errorf("%w (status 404)", nexus.ErrNotFound)},
	}
	env := newTestEngine(t, Config{BatchSize: 2}, ff)

	summary, err := env.engine.Run(context.Background(), makeRecords(5), 0)
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Completed)
	assert.Equal(t, 1, summary.Failed)
	assert.True(t, summary.Incomplete())

	require.Len(t, summary.Records, 1)
	assert.Equal(t, "3-30", summary.Records[0].RecordID)
	assert.Equal(t, model.ReasonNotFound, summary.Records[0].Reason)

	entry, err := env.store.Get("3-30")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, entry.Status)
	assert.Equal(t, model.ReasonNotFound, entry.Reason)

	// 失败记录不得出现在目标目录
	_, statErr := os.Stat(env.destDir + "/mod-3.7z")
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunHashMismatchDiscards(t *testing.T) {
	// 下载内容与声明哈希不符 → 丢弃，Failed(hashMismatch)，目录里没有该文件
	ff := &fakeFetcher{content: "wrong bytes"}
	env := newTestEngine(t, Config{BatchSize: 2}, ff)

	summary, err := env.engine.Run(context.Background(), makeRecords(1), 0)
	require.NoError(t, err)

	assert.Zero(t, summary.Completed)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, model.ReasonHashMismatch, summary.Records[0].Reason)

	_, statErr := os.Stat(env.destDir + "/mod-1.7z")
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunEmptyPendingIsDone(t *testing.T) {
	ff := &fakeFetcher{content: "abc"}
	env := newTestEngine(t, Config{BatchSize: 2}, ff)

	summary, err := env.engine.Run(context.Background(), nil, 7)
	require.NoError(t, err)
	assert.Equal(t, 7, summary.Completed)
	assert.Equal(t, 7, summary.Satisfied)
	assert.False(t, summary.Incomplete())
	assert.Equal(t, StateDone, env.engine.Snapshot().State)
}

func TestRunManualAdvance(t *testing.T) {
	ff := &fakeFetcher{content: "abc"}
	env := newTestEngine(t, Config{BatchSize: 2, Manual: true}, ff)

	done := make(chan *model.RunSummary, 1)
	go func() {
		summary, err := env.engine.Run(context.Background(), makeRecords(4), 0)
		require.NoError(t, err)
		done <- summary
	}()

	// 第一批结束后调度器会停在 AwaitingCompletion，放行一次
	require.Eventually(t, func() bool {
		return env.engine.Snapshot().State == StateAwaiting
	}, 2*time.Second, 5*time.Millisecond)

	env.engine.Advance()

	select {
	case summary := <-done:
		assert.Equal(t, 4, summary.Completed)
	case <-time.After(3 * time.Second):
		t.Fatal("engine did not finish after advance signal")
	}
}

func TestRunCancelLeavesNoInFlight(t *testing.T) {
	ff := &fakeFetcher{content: "abc", delay: 50 * time.Millisecond}
	env := newTestEngine(t, Config{BatchSize: 2}, ff)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := env.engine.Run(ctx, makeRecords(4), 0)
	require.Error(t, err)

	// 干净退出不留 InFlight
	n, err := env.store.CountByStatus(model.StatusInFlight)
	require.NoError(t, err)
	assert.Zero(t, n)
}
