package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/shouni/go-comic-kit/pkg/ai"
	"github.com/shouni/go-comic-kit/pkg/canon"
	"github.com/shouni/go-comic-kit/pkg/composer"
	"github.com/shouni/go-comic-kit/pkg/config"
	"github.com/shouni/go-comic-kit/pkg/continuity"
	"github.com/shouni/go-comic-kit/pkg/dialogue"
	"github.com/shouni/go-comic-kit/pkg/director"
	"github.com/shouni/go-comic-kit/pkg/domain"
	"github.com/shouni/go-comic-kit/pkg/generator"
	"github.com/shouni/go-comic-kit/pkg/ingest"
	"github.com/shouni/go-comic-kit/pkg/merger"
	"github.com/shouni/go-comic-kit/pkg/pipeline"
	"github.com/shouni/go-comic-kit/pkg/planner"
	"github.com/shouni/go-comic-kit/pkg/prompts"
	"github.com/shouni/go-comic-kit/pkg/story"
	"github.com/shouni/go-comic-kit/pkg/world"
)

const (
	defaultRateBurst      = 2
	defaultMergeRateBurst = 1
)

// Fetcher はソースと参照画像を読み込む契約です。storage.Fetcher が満たします。
type Fetcher interface {
	Fetch(ctx context.Context, locator string) (ai.ImageData, error)
	FetchAll(ctx context.Context, locators []string) ([]ai.ImageData, []error)
}

// ManagerArgs は Manager の構築に必要な依存です。Vision と Prompts は省略できます。
type ManagerArgs struct {
	Config  config.Config
	Text    ai.TextGenerator
	Vision  ai.VisionGenerator
	Images  ai.ImageGenerator
	Canon   canon.Repository
	Blobs   ai.BlobWriter
	Fetcher Fetcher
	Prompts prompts.PromptBuilder
}

// Manager はプロジェクトごとに正典を開き、パイプラインの部品を組み立てます。
// レートリミッターはプロセス全体で共有します。
type Manager struct {
	cfg          config.Config
	text         ai.TextGenerator
	vision       ai.VisionGenerator
	images       ai.ImageGenerator
	repo         canon.Repository
	blobs        ai.BlobWriter
	fetcher      Fetcher
	prompts      prompts.PromptBuilder
	panelLimiter *rate.Limiter
	mergeLimiter *rate.Limiter

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New は依存を検証して Manager を初期化します。
func New(args ManagerArgs) (*Manager, error) {
	if args.Text == nil {
		return nil, fmt.Errorf("TextGenerator は必須です")
	}
	if args.Images == nil {
		return nil, fmt.Errorf("ImageGenerator は必須です")
	}
	if args.Canon == nil {
		return nil, fmt.Errorf("canon.Repository は必須です")
	}
	if args.Blobs == nil {
		return nil, fmt.Errorf("BlobWriter は必須です")
	}
	if args.Fetcher == nil {
		return nil, fmt.Errorf("Fetcher は必須です")
	}

	pb, err := initializePromptBuilder(args.Prompts)
	if err != nil {
		return nil, err
	}

	return &Manager{
		cfg:          args.Config,
		text:         args.Text,
		vision:       args.Vision,
		images:       args.Images,
		repo:         args.Canon,
		blobs:        args.Blobs,
		fetcher:      args.Fetcher,
		prompts:      pb,
		panelLimiter: newLimiter(args.Config.RateInterval, defaultRateBurst),
		mergeLimiter: newLimiter(args.Config.MergeRateInterval, defaultMergeRateBurst),
		locks:        make(map[string]*sync.Mutex),
	}, nil
}

// initializePromptBuilder は渡されたビルダーを返し、nil の場合は新規作成します。
func initializePromptBuilder(pb prompts.PromptBuilder) (prompts.PromptBuilder, error) {
	if pb != nil {
		return pb, nil
	}
	built, err := prompts.NewTextPromptBuilder()
	if err != nil {
		return nil, fmt.Errorf("TextPromptBuilder の新規作成に失敗しました: %w", err)
	}
	return built, nil
}

// newLimiter は interval が 0 以下なら待機しないリミッターを返します。
func newLimiter(interval time.Duration, burst int) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, burst)
	}
	return rate.NewLimiter(rate.Every(interval), burst)
}

// Pipeline はプロジェクトの正典を開き、そのプロジェクト専用のパイプラインを組み立てます。
func (m *Manager) Pipeline(ctx context.Context, projectID string) (*pipeline.Pipeline, error) {
	store, err := canon.Open(ctx, m.repo, projectID)
	if err != nil {
		return nil, fmt.Errorf("正典の読み込みに失敗しました: %w", err)
	}

	characters := canon.NewCharacterRegistry(store, m.vision, m.fetcher, m.prompts)
	sceneries := canon.NewSceneryRegistry(store, m.vision, m.fetcher, m.prompts)
	style := canon.NewStyleRegistry(store, m.text, m.prompts).WithSuffix(m.cfg.StyleSuffix)

	orch, err := generator.New(
		m.images,
		composer.New(m.text, m.prompts, characters, sceneries, style),
		continuity.NewSupervisor(m.text, m.prompts),
		characters, sceneries,
		m.panelLimiter,
		m.cfg.StorageBaseURL,
	)
	if err != nil {
		return nil, fmt.Errorf("画像生成の初期化に失敗しました: %w", err)
	}

	renderer := merger.NewCollageRenderer(m.cfg.PageWidth, m.cfg.PageHeight, m.cfg.PaddingRatio)
	mrg, err := merger.New(m.images, m.vision, m.fetcher, m.blobs, m.prompts, renderer, m.mergeLimiter)
	if err != nil {
		return nil, fmt.Errorf("ページ統合の初期化に失敗しました: %w", err)
	}

	return pipeline.New(pipeline.Components{
		Canon:     store,
		Ingestor:  ingest.New(m.fetcher, m.cfg.ScriptChunkSize),
		Story:     story.NewAnalyzer(m.text, m.prompts, m.cfg.StoryBatchSize),
		World:     world.NewBuilder(characters, sceneries, style, m.text, m.prompts),
		Planner:   planner.New(m.text, m.prompts, m.cfg.PlannerBatchSize),
		Layout:    director.NewLayoutDesigner(),
		Generator: orch,
		Dialogue:  dialogue.New(m.text, m.prompts, director.NewBalloonStyler()),
		Merger:    mrg,
	})
}

// Execute はリクエストのプロジェクト用にパイプラインを組み立てて実行します。
// 同じプロジェクトのジョブは正典の更新が競合しないよう直列に実行します。
func (m *Manager) Execute(ctx context.Context, req domain.JobRequest, sink pipeline.Sink) (domain.JobResult, error) {
	req.ProjectID = strings.TrimSpace(req.ProjectID)
	unlock := m.lock(req.ProjectID)
	defer unlock()

	p, err := m.Pipeline(ctx, req.ProjectID)
	if err != nil {
		res := failedResult(req, err)
		slog.ErrorContext(ctx, "パイプラインの構築に失敗しました", "project_id", req.ProjectID, "error", err)
		if sink != nil {
			if emitErr := sink.Emit(ctx, res); emitErr != nil {
				slog.ErrorContext(ctx, "結果の送信に失敗しました", "project_id", req.ProjectID, "error", emitErr)
			}
		}
		return res, err
	}
	return p.Execute(ctx, req, sink)
}

func (m *Manager) lock(projectID string) func() {
	m.mu.Lock()
	l, ok := m.locks[projectID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[projectID] = l
	}
	m.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func failedResult(req domain.JobRequest, err error) domain.JobResult {
	return domain.JobResult{
		JobID:     req.JobID,
		ProjectID: req.ProjectID,
		Action:    req.Action,
		PanelID:   req.PanelID,
		Status:    domain.JobStatusFailed,
		Project:   domain.Project{ID: req.ProjectID, Status: domain.ProjectFailed, LastError: err.Error()},
		Error:     err.Error(),
	}
}
