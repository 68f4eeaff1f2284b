// Package i18n 提供命令行和诊断信息的中英文文本
package i18n

import (
	"fmt"
	"strings"
	"sync"
)

// Language 语言类型
type Language string

const (
	LangEnglish Language = "en"
	LangChinese Language = "zh"
)

// 全局语言设置
var (
	currentLang Language = LangEnglish
	mu          sync.RWMutex
)

// SetLanguage 设置当前语言
func SetLanguage(lang Language) {
	mu.Lock()
	defer mu.Unlock()
	currentLang = lang
}

// SetLanguageFromString 从字符串设置语言，无法识别时使用英文
func SetLanguageFromString(lang string) {
	switch strings.ToLower(lang) {
	case "zh", "zh-cn", "zh_cn", "zh-tw", "zh-hk", "chinese":
		SetLanguage(LangChinese)
	default:
		SetLanguage(LangEnglish)
	}
}

// GetLanguage 获取当前语言
func GetLanguage() Language {
	mu.RLock()
	defer mu.RUnlock()
	return currentLang
}

func table(lang Language) map[string]string {
	if lang == LangChinese {
		return messagesZH
	}
	return messagesEN
}

// T 翻译消息（支持格式化参数）
func T(msgID string, args ...interface{}) string {
	msg, ok := table(GetLanguage())[msgID]
	if !ok {
		// 回退到英文
		if msg, ok = messagesEN[msgID]; !ok {
			return msgID
		}
	}
	if len(args) > 0 {
		return fmt.Sprintf(msg, args...)
	}
	return msg
}

// Has 消息是否存在于英文表中
func Has(msgID string) bool {
	_, ok := messagesEN[msgID]
	return ok
}
