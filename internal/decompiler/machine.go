package decompiler

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/tangzhangming/dexdec/internal/loader"
)

// Machine 一组已加载的类
type Machine struct {
	ctx     *Context
	img     *loader.Image
	classes []*Class // 按名字排序
	byName  map[string]*Class
}

// NewMachine 为加载集合中的每个类创建处理状态，并把内部类挂到外部类下
func NewMachine(ctx *Context, img *loader.Image) *Machine {
	m := &Machine{ctx: ctx, img: img, byName: make(map[string]*Class)}
	for _, raw := range img.Classes {
		c := NewClass(ctx, img, raw)
		m.classes = append(m.classes, c)
		m.byName[raw.Name] = c
	}
	sort.Slice(m.classes, func(i, j int) bool { return m.classes[i].Name() < m.classes[j].Name() })
	for _, c := range m.classes {
		if outer := m.byName[c.Raw.OuterName()]; outer != nil && outer != c {
			outer.Nested = append(outer.Nested, c)
		}
	}
	ctx.Logger.Debug("machine ready", zap.Int("classes", len(m.classes)))
	return m
}

// Context 运行上下文
func (m *Machine) Context() *Context { return m.ctx }

// Classes 全部类
func (m *Machine) Classes() []*Class { return m.classes }

// Class 按描述符查找类
func (m *Machine) Class(name string) *Class { return m.byName[name] }

// Find 名字中包含 pattern 的类，"" 和 "*" 匹配全部
func (m *Machine) Find(pattern string) []*Class {
	var out []*Class
	for _, raw := range m.img.Find(pattern) {
		out = append(out, m.byName[raw.Name])
	}
	return out
}

// TopLevel 外部类不在加载集合中的类，输出时内部类随外部类输出
func (m *Machine) TopLevel() []*Class {
	var out []*Class
	for _, c := range m.classes {
		if outer := m.byName[c.Raw.OuterName()]; outer == nil || outer == c {
			out = append(out, c)
		}
	}
	return out
}

// ProcessAll 并发处理所有类的全部方法
func (m *Machine) ProcessAll(ctx context.Context) error {
	return processConcurrently(ctx, m.ctx.Config.Workers(), m.classes)
}
