package lsp

import (
	"strings"

	"github.com/segmentio/encoding/json"
	"go.lsp.dev/protocol"

	"github.com/tangzhangming/dexdec/internal/decompiler"
)

// Version 服务器版本
const Version = "0.1.0"

// MethodDecompile 按需反编译的扩展请求
const MethodDecompile = "dexdec/decompile"

// DecompileParams dexdec/decompile 参数
type DecompileParams struct {
	TextDocument protocol.TextDocumentIdentifier `json:"textDocument"`
	Class        string                          `json:"class,omitempty"`  // 描述符或名字片段，空表示全部顶层类
	Method       string                          `json:"method,omitempty"` // 序号或名字，空表示整个类
}

// DecompileResult dexdec/decompile 结果
type DecompileResult struct {
	Text string `json:"text"`
}

func (s *Server) handleDecompile(id json.RawMessage, params json.RawMessage) {
	var p DecompileParams
	if err := json.Unmarshal(params, &p); err != nil {
		s.sendError(id, codeParseError, "Parse error")
		return
	}
	doc := s.documents.Get(string(p.TextDocument.URI))
	if doc == nil {
		s.sendError(id, codeInvalidParams, "document not open: "+string(p.TextDocument.URI))
		return
	}

	classes := doc.Machine.TopLevel()
	if p.Class != "" {
		if c := doc.Machine.Class(p.Class); c != nil {
			classes = []*decompiler.Class{c}
		} else {
			classes = doc.Machine.Find(p.Class)
		}
	}
	if len(classes) == 0 {
		s.sendError(id, codeInvalidParams, "class not found: "+p.Class)
		return
	}

	var sb strings.Builder
	for _, c := range classes {
		var text string
		var err error
		if p.Method == "" {
			text, err = c.Render()
		} else {
			i, ok := c.FindMethod(p.Method)
			if !ok {
				s.sendError(id, codeInvalidParams, "method not found: "+c.Name()+"->"+p.Method)
				return
			}
			text, err = c.RenderMethod(i)
		}
		if err != nil {
			s.sendError(id, codeInvalidParams, err.Error())
			return
		}
		sb.WriteString(text)
	}
	s.sendResult(id, DecompileResult{Text: sb.String()})
}
