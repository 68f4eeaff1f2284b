package lsp

import (
	"go.lsp.dev/protocol"

	"github.com/tangzhangming/dexdec/internal/bytecode"
	"github.com/tangzhangming/dexdec/internal/decompiler"
)

// getDocumentSymbols 类为顶层符号，字段、方法和内部类为子符号
func (s *Server) getDocumentSymbols(doc *Document) []protocol.DocumentSymbol {
	symbols := []protocol.DocumentSymbol{}
	for _, cls := range doc.Machine.TopLevel() {
		symbols = append(symbols, classSymbol(doc, cls))
	}
	return symbols
}

func classSymbol(doc *Document, cls *decompiler.Class) protocol.DocumentSymbol {
	kind := protocol.SymbolKindClass
	if cls.Raw.IsInterface() {
		kind = protocol.SymbolKindInterface
	}
	sym := protocol.DocumentSymbol{
		Name:           bytecode.ClassName(cls.Name()),
		Detail:         cls.Name(),
		Kind:           kind,
		Range:          lineRange(doc, cls.Raw.Line),
		SelectionRange: lineRange(doc, cls.Raw.Line),
	}
	for _, f := range cls.Raw.Fields {
		sym.Children = append(sym.Children, protocol.DocumentSymbol{
			Name:           f.Name,
			Detail:         bytecode.JavaType(f.Type),
			Kind:           protocol.SymbolKindField,
			Range:          lineRange(doc, cls.Raw.Line),
			SelectionRange: lineRange(doc, cls.Raw.Line),
		})
	}
	for _, m := range cls.Methods() {
		kind := protocol.SymbolKindMethod
		if m.IsConstructor() {
			kind = protocol.SymbolKindConstructor
		}
		sym.Children = append(sym.Children, protocol.DocumentSymbol{
			Name:           m.Name,
			Detail:         m.Descriptor,
			Kind:           kind,
			Range:          lineRange(doc, m.Line),
			SelectionRange: lineRange(doc, m.Line),
		})
	}
	for _, n := range cls.Nested {
		sym.Children = append(sym.Children, classSymbol(doc, n))
	}
	return sym
}

// lineRange 一整行的范围（line 从 1 开始）
func lineRange(doc *Document, line int) protocol.Range {
	if line < 1 {
		line = 1
	}
	return protocol.Range{
		Start: protocol.Position{Line: uint32(line - 1)},
		End:   protocol.Position{Line: uint32(line - 1), Character: uint32(doc.LineLength(line - 1))},
	}
}
