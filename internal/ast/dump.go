package ast

import (
	"github.com/segmentio/encoding/json"

	"github.com/tangzhangming/dexdec/internal/bytecode"
)

// jsonNode 语法树的 JSON 形式
type jsonNode struct {
	Kind    string      `json:"kind"`
	Label   string      `json:"label,omitempty"`
	Node    *int        `json:"node,omitempty"`
	Stmts   []string    `json:"stmts,omitempty"`
	Cond    string      `json:"cond,omitempty"`
	Loop    string      `json:"loop,omitempty"`
	Value   string      `json:"value,omitempty"`
	Target  string      `json:"target,omitempty"`
	Body    []*jsonNode `json:"body,omitempty"`
	Then    []*jsonNode `json:"then,omitempty"`
	Else    []*jsonNode `json:"else,omitempty"`
	Cases   []*jsonCase `json:"cases,omitempty"`
	Catches []*jsonCase `json:"catches,omitempty"`
	Finally []*jsonNode `json:"finally,omitempty"`
}

type jsonCase struct {
	Keys    []int64     `json:"keys,omitempty"`
	Default bool        `json:"default,omitempty"`
	Types   []string    `json:"types,omitempty"`
	Var     string      `json:"var,omitempty"`
	Body    []*jsonNode `json:"body"`
}

// Dump 把语法树编码为 JSON
func Dump(root Node) ([]byte, error) {
	return json.Marshal(toJSON(root))
}

// DumpIndent 带缩进的 JSON
func DumpIndent(root Node, indent string) ([]byte, error) {
	return json.MarshalIndent(toJSON(root), "", indent)
}

func blockJSON(b *Block) []*jsonNode {
	if b == nil {
		return nil
	}
	out := make([]*jsonNode, 0, len(b.Body))
	for _, n := range b.Body {
		out = append(out, toJSON(n))
	}
	return out
}

func intPtr(v int) *int { return &v }

func toJSON(n Node) *jsonNode {
	j := &jsonNode{Label: n.LabelName()}
	switch x := n.(type) {
	case *Block:
		j.Kind = "block"
		j.Body = blockJSON(x)
	case *Statement:
		j.Kind = "statement"
		j.Node = intPtr(x.Node)
		for _, s := range x.Stmts {
			j.Stmts = append(j.Stmts, s.String())
		}
	case *If:
		j.Kind = "if"
		j.Node = intPtr(x.Node)
		j.Cond = x.Cond.String()
		j.Then = blockJSON(x.Then)
		j.Else = blockJSON(x.Else)
	case *Loop:
		j.Kind = "loop"
		j.Loop = x.Kind.String()
		if x.Node >= 0 {
			j.Node = intPtr(x.Node)
		}
		if x.Cond != nil {
			j.Cond = x.Cond.String()
		}
		j.Body = blockJSON(x.Body)
	case *Switch:
		j.Kind = "switch"
		j.Node = intPtr(x.Node)
		j.Value = x.Value.String()
		for _, c := range x.Cases {
			j.Cases = append(j.Cases, &jsonCase{Keys: c.Keys, Default: c.Default, Body: blockJSON(c.Body)})
		}
	case *TryCatch:
		j.Kind = "try"
		j.Body = blockJSON(x.Body)
		for _, c := range x.Catches {
			jc := &jsonCase{Body: blockJSON(c.Body)}
			for _, t := range c.Types {
				jc.Types = append(jc.Types, bytecode.JavaType(t))
			}
			if c.Var != nil {
				jc.Var = c.Var.String()
			}
			j.Catches = append(j.Catches, jc)
		}
		j.Finally = blockJSON(x.Finally)
	case *Goto:
		j.Kind = "goto"
		j.Target = x.Target
	case *Break:
		j.Kind = "break"
		j.Target = x.Target
	case *Continue:
		j.Kind = "continue"
		j.Target = x.Target
	}
	return j
}
