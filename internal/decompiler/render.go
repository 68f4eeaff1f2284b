package decompiler

import (
	"fmt"

	"github.com/segmentio/encoding/json"

	"github.com/tangzhangming/dexdec/internal/ast"
	"github.com/tangzhangming/dexdec/internal/config"
	"github.com/tangzhangming/dexdec/internal/formatter"
)

// ============================================================================
// 输出
// ============================================================================

// Render 按配置的格式输出整个类（含内部类）
func (c *Class) Render() (string, error) {
	if c.ctx.Config.Output.Format == config.FormatJSON {
		data, err := json.MarshalIndent(c.document(), "", "  ")
		if err != nil {
			return "", fmt.Errorf("encode %s: %w", c.Name(), err)
		}
		return string(data) + "\n", nil
	}
	return formatter.FormatClass(c.Source(), c.ctx.Config.FormatOptions()), nil
}

// RenderMethod 按配置的格式输出一个方法
func (c *Class) RenderMethod(index int) (string, error) {
	m, err := c.ProcessMethod(index)
	if err != nil {
		return "", err
	}
	if c.ctx.Config.Output.Format == config.FormatJSON {
		data, err := json.MarshalIndent(methodDocument(m), "", "  ")
		if err != nil {
			return "", fmt.Errorf("encode %s: %w", m.Raw.FullName(), err)
		}
		return string(data) + "\n", nil
	}
	return formatter.FormatMethod(m.Source, c.ctx.Config.FormatOptions()), nil
}

type classJSON struct {
	Class   string        `json:"class"`
	Super   string        `json:"super,omitempty"`
	Methods []*methodJSON `json:"methods"`
	Nested  []*classJSON  `json:"nested,omitempty"`
}

type methodJSON struct {
	Name       string          `json:"name"`
	Descriptor string          `json:"descriptor"`
	Gotos      int             `json:"gotos"`
	Loops      int             `json:"loops"`
	Error      string          `json:"error,omitempty"`
	Body       json.RawMessage `json:"body,omitempty"`
}

func (c *Class) document() *classJSON {
	doc := &classJSON{Class: c.Name(), Super: c.Raw.Super, Methods: []*methodJSON{}}
	for i := range c.slots {
		m, _ := c.ProcessMethod(i)
		doc.Methods = append(doc.Methods, methodDocument(m))
	}
	for _, n := range c.Nested {
		doc.Nested = append(doc.Nested, n.document())
	}
	return doc
}

func methodDocument(m *Method) *methodJSON {
	doc := &methodJSON{
		Name:       m.Raw.Name,
		Descriptor: m.Raw.Descriptor,
		Gotos:      m.Gotos,
		Loops:      m.Loops,
	}
	if m.Err != nil {
		doc.Error = m.Err.Error()
	}
	if m.Tree != nil {
		if data, err := ast.Dump(m.Tree); err == nil {
			doc.Body = data
		}
	}
	return doc
}
