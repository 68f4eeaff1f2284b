package lsp

import (
	"context"
	"strings"
	"sync"

	"go.lsp.dev/uri"
	"go.uber.org/zap"

	"github.com/tangzhangming/dexdec/internal/config"
	"github.com/tangzhangming/dexdec/internal/decompiler"
	"github.com/tangzhangming/dexdec/internal/errors"
	"github.com/tangzhangming/dexdec/internal/loader"
)

// Document 表示一个打开的汇编文档
type Document struct {
	URI     string
	Content string
	Version int
	Lines   []string // 按行分割的内容

	// 解析与反编译结果，内容变化后重建
	Machine  *decompiler.Machine
	Reporter *errors.Reporter
	LoadErr  error // loader 报告的语法错误（multierr）

	once sync.Once
}

// DocumentManager 文档管理器
type DocumentManager struct {
	documents map[string]*Document
	mu        sync.RWMutex

	cfg    *config.Config
	logger *zap.Logger
}

// NewDocumentManager 创建文档管理器
func NewDocumentManager(cfg *config.Config, logger *zap.Logger) *DocumentManager {
	return &DocumentManager{
		documents: make(map[string]*Document),
		cfg:       cfg,
		logger:    logger,
	}
}

// Open 打开文档
func (dm *DocumentManager) Open(docURI, content string, version int) *Document {
	doc := dm.build(docURI, content, version)
	dm.mu.Lock()
	dm.documents[docURI] = doc
	dm.mu.Unlock()
	return doc
}

// Close 关闭文档
func (dm *DocumentManager) Close(docURI string) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	delete(dm.documents, docURI)
}

// Get 获取文档
func (dm *DocumentManager) Get(docURI string) *Document {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.documents[docURI]
}

// Update 用完整内容替换文档；version < 0 表示在原版本上加一
func (dm *DocumentManager) Update(docURI, content string, version int) *Document {
	dm.mu.RLock()
	old := dm.documents[docURI]
	dm.mu.RUnlock()
	if old == nil {
		return nil
	}
	if version < 0 {
		version = old.Version + 1
	}
	return dm.Open(docURI, content, version)
}

// build 解析文档并准备反编译上下文
func (dm *DocumentManager) build(docURI, content string, version int) *Document {
	doc := &Document{
		URI:     docURI,
		Content: content,
		Version: version,
		Lines:   splitLines(content),
	}
	img, err := loader.Parse(content, uriToPath(docURI))
	doc.LoadErr = err

	doc.Reporter = errors.NewReporter()
	doc.Reporter.SetQuiet(true)
	ctx := decompiler.NewContext(dm.cfg,
		decompiler.WithLogger(dm.logger.With(zap.String("uri", docURI))),
		decompiler.WithReporter(doc.Reporter),
	)
	doc.Machine = decompiler.NewMachine(ctx, img)
	return doc
}

// Process 处理文档中的全部方法（只做一次）
func (doc *Document) Process(ctx context.Context) {
	doc.once.Do(func() {
		// 方法错误已进入 Reporter
		_ = doc.Machine.ProcessAll(ctx)
	})
}

// LineLength 行长度（越界返回 0）
func (doc *Document) LineLength(line int) int {
	if line < 0 || line >= len(doc.Lines) {
		return 0
	}
	return len(doc.Lines[line])
}

// splitLines 按行分割
func splitLines(content string) []string {
	return strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
}

// uriToPath 将 URI 转换为文件路径
func uriToPath(docURI string) string {
	u, err := uri.Parse(docURI)
	if err != nil {
		return docURI
	}
	return u.Filename()
}
