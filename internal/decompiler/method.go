package decompiler

import (
	"go.uber.org/zap"

	"github.com/tangzhangming/dexdec/internal/ast"
	"github.com/tangzhangming/dexdec/internal/bytecode"
	"github.com/tangzhangming/dexdec/internal/cache"
	"github.com/tangzhangming/dexdec/internal/config"
	"github.com/tangzhangming/dexdec/internal/errors"
	"github.com/tangzhangming/dexdec/internal/formatter"
	"github.com/tangzhangming/dexdec/internal/loader"
)

// State 方法的处理状态
type State int

const (
	Unprocessed State = iota // 只有字节码
	Processed                // 已经过流水线（成功或失败）
)

func (s State) String() string {
	if s == Processed {
		return "processed"
	}
	return "unprocessed"
}

// Method 一个方法及其反编译结果
type Method struct {
	Raw    *bytecode.Method
	State  State
	Source *formatter.MethodSource // 交给输出的内容
	Tree   *ast.Block              // 结构化语法树，无方法体、失败或命中缓存时为 nil
	Gotos  int
	Loops  int
	Cached bool  // 结果来自缓存
	Err    error // *errors.MethodError
}

// process 反编译一个方法，失败只影响这个方法
func (c *Context) process(img *loader.Image, m *bytecode.Method) *Method {
	out := &Method{Raw: m, State: Processed}
	c.Stats.Methods.Inc()
	class, name := m.Class, m.FullName()

	for _, off := range m.Overlaps {
		c.Reporter.Warn(errors.W0003, class, name, nil, off)
	}
	for _, ref := range checkReferences(img, m) {
		c.Reporter.Warn(errors.W0002, class, name, map[string]interface{}{
			"name":       ref.Name,
			"candidates": ref.Candidates,
		}, ref.Ref)
	}

	var key []byte
	if c.Cache != nil && m.HasCode() && c.Config.Output.Format == config.FormatJava {
		key = cache.Key(m, c.Config.Fingerprint())
		entry, ok, err := c.Cache.Get(key)
		if err != nil {
			c.Logger.Warn("cache lookup failed", zap.String("method", name), zap.Error(err))
		} else if ok {
			out.Source = &formatter.MethodSource{Method: m, Text: entry.Source}
			out.Gotos, out.Loops, out.Cached = entry.Gotos, entry.Loops, true
			c.Stats.CacheHits.Inc()
			c.record(out)
			return out
		}
	}

	w, err := runPipeline(c, m)
	if err != nil {
		merr := &errors.MethodError{Method: name, Code: classify(err), Err: err}
		out.Err = merr
		out.Source = &formatter.MethodSource{Method: m, Err: merr}
		c.Stats.Failed.Inc()
		c.Reporter.ReportMethodError(class, merr)
		c.Logger.Warn("method failed", zap.String("method", name), zap.String("code", merr.Code), zap.Error(err))
		return out
	}

	ms := &formatter.MethodSource{Method: m}
	if w.g != nil {
		ms.Params = w.g.Params
	}
	irreducible := 0
	if w.result != nil {
		ms.Body = w.result.Root
		out.Tree = w.result.Root
		out.Gotos, out.Loops = w.result.Gotos, w.result.Loops
		irreducible = w.result.Irreducible
	}
	out.Source = ms
	c.record(out)
	if out.Gotos > 0 {
		c.Reporter.Warn(errors.W0001, class, name, map[string]interface{}{"irreducible": irreducible}, out.Gotos)
	}

	if key != nil {
		entry := &cache.Entry{
			Source: formatter.FormatMethod(ms, c.Config.FormatOptions()),
			Gotos:  out.Gotos,
			Loops:  out.Loops,
		}
		if err := c.Cache.Put(key, entry); err != nil {
			c.Logger.Warn("cache store failed", zap.String("method", name), zap.Error(err))
		}
	}
	return out
}

// record 累计统计；命中缓存的 goto 也重新报告
func (c *Context) record(m *Method) {
	c.Stats.Gotos.Add(int64(m.Gotos))
	c.Stats.Loops.Add(int64(m.Loops))
	if m.Cached && m.Gotos > 0 {
		c.Reporter.Warn(errors.W0001, m.Raw.Class, m.Raw.FullName(), nil, m.Gotos)
	}
}
