package i18n

import (
	"strings"
	"testing"
)

// TestTranslate 测试中英文切换和格式化参数
func TestTranslate(t *testing.T) {
	defer SetLanguage(LangEnglish)

	SetLanguage(LangEnglish)
	if got := T(MsgClassNotFound, "Foo"); got != "class not found: Foo" {
		t.Errorf("english: got %q", got)
	}

	SetLanguageFromString("zh-CN")
	if GetLanguage() != LangChinese {
		t.Fatalf("expected chinese, got %s", GetLanguage())
	}
	if got := T(MsgClassNotFound, "Foo"); got != "找不到类: Foo" {
		t.Errorf("chinese: got %q", got)
	}

	SetLanguageFromString("fr")
	if GetLanguage() != LangEnglish {
		t.Errorf("unknown language should fall back to english")
	}
}

// TestUnknownMessage 测试未知消息 ID 原样返回
func TestUnknownMessage(t *testing.T) {
	if got := T("no.such.message"); got != "no.such.message" {
		t.Errorf("got %q", got)
	}
	if Has("no.such.message") {
		t.Error("Has reported an unknown message")
	}
}

// TestTablesComplete 测试两种语言的消息表覆盖相同的 ID
func TestTablesComplete(t *testing.T) {
	for id := range messagesEN {
		if _, ok := messagesZH[id]; !ok {
			t.Errorf("missing chinese text for %s", id)
		}
	}
	for id := range messagesZH {
		if _, ok := messagesEN[id]; !ok {
			t.Errorf("missing english text for %s", id)
		}
	}
	for id, msg := range messagesEN {
		if strings.TrimSpace(msg) == "" {
			t.Errorf("empty message for %s", id)
		}
	}
}
