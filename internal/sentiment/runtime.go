package sentiment

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/socialsense/internal/model"
)

// DefaultProbeInterval はLoaderの再試行間隔の既定値。
const DefaultProbeInterval = 5 * time.Second

// State は分類エンジンの状態。
type State int

const (
	// StateUninitialized はエンジンがまだ準備されていない状態。
	StateUninitialized State = iota
	// StateReady はエンジンが利用可能な状態。以後変化しない。
	StateReady
)

// String は状態名を返す。
func (s State) String() string {
	if s == StateReady {
		return "ready"
	}
	return "loading"
}

// ErrAlreadyLoaded はエンジンが既に設定済みであることを示す。
var ErrAlreadyLoaded = errors.New("engine is already loaded")

// Runtime は分類エンジンを1度だけ書き込み、以後は読み取り専用で共有する。
type Runtime struct {
	mu     sync.RWMutex
	engine Engine
	logger *slog.Logger
}

// NewRuntime は未初期化のRuntimeを生成する。
func NewRuntime(logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{logger: logger}
}

// State は現在の状態を返す。
func (r *Runtime) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.engine == nil {
		return StateUninitialized
	}
	return StateReady
}

// Ready はエンジンが利用可能かどうかを返す。
func (r *Runtime) Ready() bool {
	return r.State() == StateReady
}

// Engine は準備済みのエンジンを返す。未準備ならmodel.ErrModelUnavailableを返す。
func (r *Runtime) Engine() (Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.engine == nil {
		return nil, model.ErrModelUnavailable
	}
	return r.engine, nil
}

// Set はエンジンを設定する。2回目以降はErrAlreadyLoadedを返す。
func (r *Runtime) Set(engine Engine) error {
	if engine == nil {
		return errors.New("engine must not be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.engine != nil {
		return ErrAlreadyLoaded
	}
	r.engine = engine
	return nil
}

// Load はloaderが成功するまでinterval間隔で再試行し、成功したエンジンを設定する。
// ctxが終了した場合はctx.Err()を返す。
func (r *Runtime) Load(ctx context.Context, loader Loader, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}

	for attempt := 1; ; attempt++ {
		engine, err := loader(ctx)
		if err == nil {
			if err := r.Set(engine); err != nil {
				return err
			}
			r.logger.Info("分類エンジンの準備完了", slog.Int("attempts", attempt))
			return nil
		}

		r.logger.Warn("分類エンジンの準備待ち",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
			slog.Duration("retry_in", interval),
		)

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
