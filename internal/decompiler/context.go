// Package decompiler 把每个方法依次送过反编译流水线，并管理类和整个加载集合
package decompiler

import (
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/tangzhangming/dexdec/internal/cache"
	"github.com/tangzhangming/dexdec/internal/config"
	"github.com/tangzhangming/dexdec/internal/errors"
	"github.com/tangzhangming/dexdec/internal/profiler"
)

// Context 一次运行共享的设施，方法之间只通过它共享状态
type Context struct {
	Logger   *zap.Logger
	Config   *config.Config
	Reporter *errors.Reporter
	Cache    *cache.Cache // 可为 nil
	Profiler *profiler.Profiler
	Stats    *Stats
}

// Option 配置 Context
type Option func(*Context)

// WithLogger 设置日志
func WithLogger(l *zap.Logger) Option {
	return func(c *Context) { c.Logger = l }
}

// WithReporter 设置诊断报告器
func WithReporter(r *errors.Reporter) Option {
	return func(c *Context) { c.Reporter = r }
}

// WithCache 设置结果缓存
func WithCache(ch *cache.Cache) Option {
	return func(c *Context) { c.Cache = ch }
}

// WithProfiler 设置阶段分析器
func WithProfiler(p *profiler.Profiler) Option {
	return func(c *Context) { c.Profiler = p }
}

// NewContext 创建运行上下文，cfg 为 nil 时使用默认配置
func NewContext(cfg *config.Config, opts ...Option) *Context {
	if cfg == nil {
		cfg = config.Default()
	}
	c := &Context{
		Logger:   zap.NewNop(),
		Config:   cfg,
		Reporter: errors.NewReporter(),
		Profiler: profiler.NewProfiler(),
		Stats:    &Stats{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Stats 运行统计
type Stats struct {
	Methods   atomic.Int64 // 处理的方法数（含无代码方法）
	Failed    atomic.Int64 // 失败的方法数
	Gotos     atomic.Int64 // 输出的 goto 总数
	Loops     atomic.Int64 // 恢复的循环总数
	CacheHits atomic.Int64
}

// Snapshot 统计快照
type Snapshot struct {
	Methods   int64 `json:"methods"`
	Failed    int64 `json:"failed"`
	Gotos     int64 `json:"gotos"`
	Loops     int64 `json:"loops"`
	CacheHits int64 `json:"cache_hits"`
}

// Snapshot 读取当前统计
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Methods:   s.Methods.Load(),
		Failed:    s.Failed.Load(),
		Gotos:     s.Gotos.Load(),
		Loops:     s.Loops.Load(),
		CacheHits: s.CacheHits.Load(),
	}
}
