// Package errors 提供反编译诊断：错误码、方法级错误和报告器
package errors

import "github.com/tangzhangming/dexdec/internal/i18n"

// ============================================================================
// 错误级别
// ============================================================================

// Level 错误级别
type Level int

const (
	LevelError   Level = iota // 错误
	LevelWarning              // 警告
	LevelNote                 // 提示
)

func (l Level) String() string {
	switch l {
	case LevelError:
		return "error"
	case LevelWarning:
		return "warning"
	case LevelNote:
		return "note"
	default:
		return "unknown"
	}
}

// ============================================================================
// 错误码
// ============================================================================

// 反编译错误码 (D 开头)，方法体被放弃
const (
	D0001 = "D0001" // 字节码格式错误
	D0002 = "D0002" // 内部不变量被破坏
	D0003 = "D0003" // 不支持的指令
)

// 反编译警告码 (W 开头)，输出仍然可用
const (
	W0001 = "W0001" // 残留 goto
	W0002 = "W0002" // 无法解析的引用
	W0003 = "W0003" // try 范围重叠
)

// ErrorInfo 错误码信息
type ErrorInfo struct {
	Code      string // 错误码
	Level     Level  // 错误级别
	MessageID string // i18n 消息 ID
	HintID    string // i18n 建议 ID（可为空）
	Category  string // 错误类别
}

// codeTable 错误码信息表
var codeTable = map[string]ErrorInfo{
	D0001: {D0001, LevelError, i18n.MsgMalformed, i18n.HintMalformed, "bytecode"},
	D0002: {D0002, LevelError, i18n.MsgInvariant, i18n.HintInvariant, "internal"},
	D0003: {D0003, LevelError, i18n.MsgUnsupported, i18n.HintUnsupported, "bytecode"},

	W0001: {W0001, LevelWarning, i18n.MsgResidualGoto, i18n.HintResidualGoto, "structure"},
	W0002: {W0002, LevelWarning, i18n.MsgUnresolved, i18n.HintUnresolved, "reference"},
	W0003: {W0003, LevelWarning, i18n.MsgOverlappingTry, "", "structure"},
}

// GetErrorInfo 获取错误码信息
func GetErrorInfo(code string) (ErrorInfo, bool) {
	info, ok := codeTable[code]
	return info, ok
}

// IsError 检查是否为错误级别的码
func IsError(code string) bool {
	info, ok := codeTable[code]
	return ok && info.Level == LevelError
}

// IsWarning 检查是否为警告级别的码
func IsWarning(code string) bool {
	info, ok := codeTable[code]
	return ok && info.Level == LevelWarning
}

// Message 按当前语言生成错误码的消息
func Message(code string, args ...interface{}) string {
	info, ok := codeTable[code]
	if !ok {
		return code
	}
	return i18n.T(info.MessageID, args...)
}
