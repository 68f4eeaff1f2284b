package main

import (
	"os"
	"strings"
)

// resolveLanguage 命令行参数优先，其次是配置文件，都没有时检测系统语言
func resolveLanguage(flagLang, configLang string) string {
	if flagLang != "" {
		return flagLang
	}
	if configLang != "" {
		return configLang
	}
	if detectChineseOS() {
		return "zh"
	}
	return "en"
}

// detectChineseOS 检测系统语言是否为中文
func detectChineseOS() bool {
	if detectWindowsChinese() {
		return true
	}

	// Unix/Linux/Mac: 检查环境变量
	langVars := []string{"LANG", "LANGUAGE", "LC_ALL", "LC_MESSAGES"}
	for _, v := range langVars {
		if val := os.Getenv(v); val != "" {
			lower := strings.ToLower(val)
			if strings.Contains(lower, "zh") ||
				strings.Contains(lower, "chinese") {
				return true
			}
		}
	}

	return false
}
