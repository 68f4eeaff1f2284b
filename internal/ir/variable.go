// Package ir 定义反编译器使用的语句与表达式
package ir

import (
	"fmt"
)

// VarKind 变量种类
type VarKind int

const (
	KindLocal     VarKind = iota // 普通局部变量
	KindParameter                // 方法参数
	KindThis                     // this 引用
	KindTemp                     // 拆分产生的临时变量
)

func (k VarKind) String() string {
	switch k {
	case KindParameter:
		return "param"
	case KindThis:
		return "this"
	case KindTemp:
		return "temp"
	default:
		return "local"
	}
}

// Variable 虚拟寄存器对应的变量
//
// 拆分前每个寄存器对应一个变量；生命期拆分后同一寄存器可能对应多个变量，
// Version 区分它们。
type Variable struct {
	ID       int
	Register int
	Kind     VarKind
	Type     string // 类型描述符，未知时为空
	Version  int
	Name     string // 显式名字（参数、this），为空时按寄存器生成
}

// IsParam 是否为参数或 this
func (v *Variable) IsParam() bool {
	return v.Kind == KindParameter || v.Kind == KindThis
}

func (v *Variable) String() string {
	if v.Name != "" {
		return v.Name
	}
	if v.Version == 0 {
		return fmt.Sprintf("v%d", v.Register)
	}
	return fmt.Sprintf("v%d_%d", v.Register, v.Version)
}

// VarTable 一个方法的全部变量
type VarTable struct {
	vars     []*Variable
	byReg    map[int]*Variable
	versions map[int]int
}

// NewVarTable 创建变量表
func NewVarTable() *VarTable {
	return &VarTable{
		byReg:    make(map[int]*Variable),
		versions: make(map[int]int),
	}
}

// Register 寄存器对应的初始变量（首次访问时创建）
func (t *VarTable) Register(r int) *Variable {
	if v, ok := t.byReg[r]; ok {
		return v
	}
	v := &Variable{ID: len(t.vars), Register: r, Kind: KindLocal}
	t.vars = append(t.vars, v)
	t.byReg[r] = v
	return v
}

// Param 声明参数寄存器
func (t *VarTable) Param(r int, typ string, this bool) *Variable {
	v := t.Register(r)
	v.Type = typ
	if this {
		v.Kind = KindThis
		v.Name = "this"
	} else {
		v.Kind = KindParameter
		v.Name = fmt.Sprintf("p%d", r)
	}
	return v
}

// Fresh 为同一寄存器创建新版本的变量
func (t *VarTable) Fresh(base *Variable) *Variable {
	t.versions[base.Register]++
	v := &Variable{
		ID:       len(t.vars),
		Register: base.Register,
		Kind:     KindLocal,
		Version:  t.versions[base.Register],
	}
	// 参数寄存器被复用时，新变量与参数类型无关
	if base.IsParam() {
		v.Kind = KindTemp
	} else {
		v.Type = base.Type
	}
	t.vars = append(t.vars, v)
	return v
}

// All 全部变量（按创建顺序）
func (t *VarTable) All() []*Variable {
	return t.vars
}

// Params 参数变量（含 this），按寄存器顺序
func (t *VarTable) Params() []*Variable {
	var out []*Variable
	for _, v := range t.vars {
		if v.IsParam() {
			out = append(out, v)
		}
	}
	return out
}

// Len 变量数量
func (t *VarTable) Len() int { return len(t.vars) }
