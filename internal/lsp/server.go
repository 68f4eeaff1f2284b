// Package lsp 为汇编文本提供语言服务：反编译诊断、文档符号和按需反编译
package lsp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/segmentio/encoding/json"
	"go.lsp.dev/protocol"
	"go.uber.org/zap"

	"github.com/tangzhangming/dexdec/internal/config"
)

// JSON-RPC 错误码
const (
	codeParseError     = -32700
	codeInvalidParams  = -32602
	codeMethodNotFound = -32601
)

// Server LSP 服务器
type Server struct {
	documents *DocumentManager
	logger    *zap.Logger

	// 输入输出
	reader *bufio.Reader
	writer io.Writer
	mu     sync.Mutex

	// 服务器状态
	initialized bool
	shutdown    bool
}

// NewServer 创建 LSP 服务器
func NewServer(cfg *config.Config, logger *zap.Logger, in io.Reader, out io.Writer) *Server {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		documents: NewDocumentManager(cfg, logger),
		logger:    logger,
		reader:    bufio.NewReader(in),
		writer:    out,
	}
}

// Run 启动 LSP 服务器主循环，客户端断开或收到 exit 时返回
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("language server started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msg, err := s.readMessage()
		if err != nil {
			if err == io.EOF {
				s.logger.Info("client disconnected")
				return nil
			}
			return err
		}

		s.handleMessage(ctx, msg)

		if s.shutdown {
			s.logger.Info("server shutdown")
			return nil
		}
	}
}

// readMessage 读取一条带 Content-Length 头的消息
func (s *Server) readMessage() ([]byte, error) {
	var contentLength int
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			// 头部结束
			break
		}
		if strings.HasPrefix(line, "Content-Length:") {
			lengthStr := strings.TrimSpace(strings.TrimPrefix(line, "Content-Length:"))
			contentLength, err = strconv.Atoi(lengthStr)
			if err != nil {
				return nil, fmt.Errorf("invalid Content-Length: %s", lengthStr)
			}
		}
	}
	if contentLength == 0 {
		return nil, fmt.Errorf("missing Content-Length header")
	}

	content := make([]byte, contentLength)
	if _, err := io.ReadFull(s.reader, content); err != nil {
		return nil, err
	}
	s.logger.Debug("received", zap.ByteString("message", content))
	return content, nil
}

// sendMessage 发送一条消息
func (s *Server) sendMessage(msg interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	content, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	s.logger.Debug("sending", zap.ByteString("message", content))
	if _, err := fmt.Fprintf(s.writer, "Content-Length: %d\r\n\r\n", len(content)); err != nil {
		return err
	}
	_, err = s.writer.Write(content)
	return err
}

// handleMessage 按方法分发
func (s *Server) handleMessage(ctx context.Context, msg []byte) {
	var baseMsg struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      json.RawMessage `json:"id,omitempty"`
		Method  string          `json:"method"`
		Params  json.RawMessage `json:"params,omitempty"`
	}
	if err := json.Unmarshal(msg, &baseMsg); err != nil {
		s.logger.Warn("malformed message", zap.Error(err))
		return
	}

	switch baseMsg.Method {
	case "initialize":
		s.handleInitialize(baseMsg.ID, baseMsg.Params)
	case "initialized":
		s.initialized = true
	case "shutdown":
		s.sendResult(baseMsg.ID, nil)
	case "exit":
		s.shutdown = true
	case "textDocument/didOpen":
		s.handleDidOpen(ctx, baseMsg.Params)
	case "textDocument/didChange":
		s.handleDidChange(ctx, baseMsg.Params)
	case "textDocument/didClose":
		s.handleDidClose(baseMsg.Params)
	case "textDocument/didSave":
		s.handleDidSave(ctx, baseMsg.Params)
	case "textDocument/documentSymbol":
		s.handleDocumentSymbol(baseMsg.ID, baseMsg.Params)
	case MethodDecompile:
		s.handleDecompile(baseMsg.ID, baseMsg.Params)
	case "$/cancelRequest":
		// 请求都是同步处理的
	default:
		s.logger.Debug("unknown method", zap.String("method", baseMsg.Method))
		if baseMsg.ID != nil {
			s.sendError(baseMsg.ID, codeMethodNotFound, "Method not found: "+baseMsg.Method)
		}
	}
}

// handleInitialize 返回服务器能力
func (s *Server) handleInitialize(id json.RawMessage, params json.RawMessage) {
	var initParams protocol.InitializeParams
	if err := json.Unmarshal(params, &initParams); err != nil {
		s.sendError(id, codeParseError, "Parse error")
		return
	}
	s.logger.Info("initialize", zap.String("root", string(initParams.RootURI)))

	result := map[string]interface{}{
		"capabilities": map[string]interface{}{
			// 全量同步
			"textDocumentSync": map[string]interface{}{
				"openClose": true,
				"change":    1,
				"save": map[string]interface{}{
					"includeText": true,
				},
			},
			"documentSymbolProvider": true,
		},
		"serverInfo": map[string]interface{}{
			"name":    "dexdec-ls",
			"version": Version,
		},
	}
	s.sendResult(id, result)
}

func (s *Server) handleDidOpen(ctx context.Context, params json.RawMessage) {
	var p protocol.DidOpenTextDocumentParams
	if err := json.Unmarshal(params, &p); err != nil {
		s.logger.Warn("bad didOpen params", zap.Error(err))
		return
	}
	docURI := string(p.TextDocument.URI)
	s.documents.Open(docURI, p.TextDocument.Text, int(p.TextDocument.Version))
	s.publishDiagnostics(ctx, docURI)
}

func (s *Server) handleDidChange(ctx context.Context, params json.RawMessage) {
	var p protocol.DidChangeTextDocumentParams
	if err := json.Unmarshal(params, &p); err != nil {
		s.logger.Warn("bad didChange params", zap.Error(err))
		return
	}
	if len(p.ContentChanges) == 0 {
		return
	}
	docURI := string(p.TextDocument.URI)
	// 全量同步：最后一次变更就是完整内容
	text := p.ContentChanges[len(p.ContentChanges)-1].Text
	if s.documents.Update(docURI, text, int(p.TextDocument.Version)) != nil {
		s.publishDiagnostics(ctx, docURI)
	}
}

func (s *Server) handleDidClose(params json.RawMessage) {
	var p protocol.DidCloseTextDocumentParams
	if err := json.Unmarshal(params, &p); err != nil {
		s.logger.Warn("bad didClose params", zap.Error(err))
		return
	}
	s.documents.Close(string(p.TextDocument.URI))

	// 清除诊断
	s.sendNotification("textDocument/publishDiagnostics", protocol.PublishDiagnosticsParams{
		URI:         p.TextDocument.URI,
		Diagnostics: []protocol.Diagnostic{},
	})
}

func (s *Server) handleDidSave(ctx context.Context, params json.RawMessage) {
	var p protocol.DidSaveTextDocumentParams
	if err := json.Unmarshal(params, &p); err != nil {
		s.logger.Warn("bad didSave params", zap.Error(err))
		return
	}
	docURI := string(p.TextDocument.URI)
	if p.Text != "" {
		s.documents.Update(docURI, p.Text, -1)
	}
	s.publishDiagnostics(ctx, docURI)
}

func (s *Server) handleDocumentSymbol(id json.RawMessage, params json.RawMessage) {
	var p protocol.DocumentSymbolParams
	if err := json.Unmarshal(params, &p); err != nil {
		s.sendError(id, codeParseError, "Parse error")
		return
	}
	doc := s.documents.Get(string(p.TextDocument.URI))
	if doc == nil {
		s.sendResult(id, []protocol.DocumentSymbol{})
		return
	}
	s.sendResult(id, s.getDocumentSymbols(doc))
}

// publishDiagnostics 发布诊断信息
func (s *Server) publishDiagnostics(ctx context.Context, docURI string) {
	doc := s.documents.Get(docURI)
	if doc == nil {
		return
	}
	s.sendNotification("textDocument/publishDiagnostics", protocol.PublishDiagnosticsParams{
		URI:         protocol.DocumentURI(docURI),
		Version:     uint32(doc.Version),
		Diagnostics: s.getDiagnostics(ctx, doc),
	})
}

// sendResult 发送成功响应
func (s *Server) sendResult(id json.RawMessage, result interface{}) {
	response := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      id,
		"result":  result,
	}
	if err := s.sendMessage(response); err != nil {
		s.logger.Warn("send failed", zap.Error(err))
	}
}

// sendError 发送错误响应
func (s *Server) sendError(id json.RawMessage, code int, message string) {
	response := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      id,
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
	}
	if err := s.sendMessage(response); err != nil {
		s.logger.Warn("send failed", zap.Error(err))
	}
}

// sendNotification 发送通知
func (s *Server) sendNotification(method string, params interface{}) {
	notification := map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  params,
	}
	if err := s.sendMessage(notification); err != nil {
		s.logger.Warn("send failed", zap.Error(err))
	}
}
