package lsp

import (
	"context"
	goerrors "errors"
	"strings"

	"go.lsp.dev/protocol"
	"go.uber.org/multierr"

	"github.com/tangzhangming/dexdec/internal/errors"
	"github.com/tangzhangming/dexdec/internal/loader"
)

// diagnosticSource 诊断来源名
const diagnosticSource = "dexdec"

// getDiagnostics 语法错误加上反编译诊断
func (s *Server) getDiagnostics(ctx context.Context, doc *Document) []protocol.Diagnostic {
	diagnostics := []protocol.Diagnostic{}

	for _, err := range multierr.Errors(doc.LoadErr) {
		var lerr *loader.Error
		line := 1
		msg := err.Error()
		if goerrors.As(err, &lerr) {
			line, msg = lerr.Line, lerr.Message
		}
		diagnostics = append(diagnostics, newDiagnostic(doc, line, "", protocol.DiagnosticSeverityError, msg))
	}

	doc.Process(ctx)
	errs, warnings := doc.Reporter.Diagnostics()
	for _, d := range append(errs, warnings...) {
		diagnostics = append(diagnostics, s.convertDiagnostic(doc, d))
	}
	return diagnostics
}

// convertDiagnostic 把反编译诊断定位到方法声明行
func (s *Server) convertDiagnostic(doc *Document, d *errors.Diagnostic) protocol.Diagnostic {
	line := 1
	if cls := doc.Machine.Class(d.Class); cls != nil {
		line = cls.Raw.Line
		for _, m := range cls.Methods() {
			if m.FullName() == d.Method {
				line = m.Line
				break
			}
		}
	}

	severity := protocol.DiagnosticSeverityError
	switch d.Level {
	case errors.LevelWarning:
		severity = protocol.DiagnosticSeverityWarning
	case errors.LevelNote:
		severity = protocol.DiagnosticSeverityInformation
	}

	msg := d.Message
	if len(d.Hints) > 0 {
		msg += "\n" + strings.Join(d.Hints, "\n")
	}
	return newDiagnostic(doc, line, d.Code, severity, msg)
}

// newDiagnostic 创建覆盖整行的诊断（line 从 1 开始）
func newDiagnostic(doc *Document, line int, code string, severity protocol.DiagnosticSeverity, message string) protocol.Diagnostic {
	if line < 1 {
		line = 1
	}
	d := protocol.Diagnostic{
		Range: protocol.Range{
			Start: protocol.Position{
				Line:      uint32(line - 1), // LSP 行号从 0 开始
				Character: 0,
			},
			End: protocol.Position{
				Line:      uint32(line - 1),
				Character: uint32(doc.LineLength(line - 1)),
			},
		},
		Severity: severity,
		Source:   diagnosticSource,
		Message:  message,
	}
	if code != "" {
		d.Code = code
	}
	return d
}
