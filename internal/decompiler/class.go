package decompiler

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/tangzhangming/dexdec/internal/bytecode"
	"github.com/tangzhangming/dexdec/internal/formatter"
	"github.com/tangzhangming/dexdec/internal/loader"
)

// slot 一个方法的惰性处理位
type slot struct {
	once   sync.Once
	done   atomic.Bool
	method *Method
}

// Class 一个类及其方法的处理状态
type Class struct {
	ctx    *Context
	img    *loader.Image
	Raw    *bytecode.Class
	Nested []*Class // 内部类

	slots []*slot
}

// NewClass 创建类，方法全部处于未处理状态
func NewClass(ctx *Context, img *loader.Image, raw *bytecode.Class) *Class {
	c := &Class{ctx: ctx, img: img, Raw: raw}
	c.slots = make([]*slot, len(raw.Methods))
	for i := range c.slots {
		c.slots[i] = &slot{}
	}
	return c
}

// Name 类描述符
func (c *Class) Name() string { return c.Raw.Name }

// Methods 方法列表（按类中顺序）
func (c *Class) Methods() []*bytecode.Method { return c.Raw.Methods }

// State 方法的处理状态
func (c *Class) State(index int) State {
	if index < 0 || index >= len(c.slots) || !c.slots[index].done.Load() {
		return Unprocessed
	}
	return Processed
}

// ProcessMethod 处理第 index 个方法，已处理时直接返回结果
//
// 反编译失败时返回的 Method.Err 非空，error 只表示 index 无效。
func (c *Class) ProcessMethod(index int) (*Method, error) {
	if index < 0 || index >= len(c.slots) {
		return nil, fmt.Errorf("method index %d out of range [0, %d)", index, len(c.slots))
	}
	s := c.slots[index]
	s.once.Do(func() {
		s.method = c.ctx.process(c.img, c.Raw.Methods[index])
		s.done.Store(true)
	})
	return s.method, nil
}

// FindMethod 按序号或名字查找方法
func (c *Class) FindMethod(selector string) (int, bool) {
	if i, err := strconv.Atoi(selector); err == nil {
		return i, i >= 0 && i < len(c.Raw.Methods)
	}
	for i, m := range c.Raw.Methods {
		if m.Name == selector || m.Name+m.Descriptor == selector {
			return i, true
		}
	}
	return -1, false
}

// ProcessAll 并发处理全部方法，返回合并后的方法错误
func (c *Class) ProcessAll(ctx context.Context) error {
	return processConcurrently(ctx, c.ctx.Config.Workers(), []*Class{c})
}

// processConcurrently 每个方法一个任务，并发数受 workers 限制
//
// 取消只放弃还没开始的方法。
func processConcurrently(ctx context.Context, workers int, classes []*Class) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	var mu sync.Mutex
	var errs error
	for _, cls := range classes {
		for i := range cls.slots {
			cls, i := cls, i
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				m, err := cls.ProcessMethod(i)
				if err != nil {
					return err
				}
				if m.Err != nil {
					mu.Lock()
					errs = multierr.Append(errs, m.Err)
					mu.Unlock()
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return multierr.Append(err, errs)
	}
	return errs
}

// Source 输出需要的内容，未处理的方法在这里依次处理
func (c *Class) Source() *formatter.ClassSource {
	cs := &formatter.ClassSource{Class: c.Raw}
	for i := range c.slots {
		m, _ := c.ProcessMethod(i)
		cs.Methods = append(cs.Methods, m.Source)
	}
	for _, n := range c.Nested {
		cs.Nested = append(cs.Nested, n.Source())
	}
	return cs
}
