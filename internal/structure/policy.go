// Package structure 把控制流图恢复为结构化语法树
package structure

import (
	"fmt"
)

// LoopPolicy 循环同时满足先判断和后判断形式时的选择
type LoopPolicy int

const (
	PretestFirst  LoopPolicy = iota // 优先 while
	PosttestFirst                   // 优先 do-while
)

func (p LoopPolicy) String() string {
	if p == PosttestFirst {
		return "posttest-first"
	}
	return "pretest-first"
}

// ParseLoopPolicy 解析配置中的循环策略
func ParseLoopPolicy(s string) (LoopPolicy, error) {
	switch s {
	case "", "pretest-first":
		return PretestFirst, nil
	case "posttest-first":
		return PosttestFirst, nil
	}
	return PretestFirst, fmt.Errorf("unknown loop policy %q", s)
}

// HandlerOrder catch 子句的排列方式
type HandlerOrder int

const (
	TableOrder   HandlerOrder = iota // 异常表顺序
	CatchAllLast                     // catch-all 放到最后，其余保持异常表顺序
)

func (o HandlerOrder) String() string {
	if o == CatchAllLast {
		return "catch-all-last"
	}
	return "table"
}

// ParseHandlerOrder 解析配置中的处理器顺序
func ParseHandlerOrder(s string) (HandlerOrder, error) {
	switch s {
	case "", "table":
		return TableOrder, nil
	case "catch-all-last":
		return CatchAllLast, nil
	}
	return TableOrder, fmt.Errorf("unknown handler order %q", s)
}

// Policy 结构化策略
type Policy struct {
	Loop     LoopPolicy
	Handlers HandlerOrder
}

// DefaultPolicy 默认策略
func DefaultPolicy() Policy {
	return Policy{Loop: PretestFirst, Handlers: TableOrder}
}
