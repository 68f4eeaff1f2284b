package errors

import (
	"strings"

	"github.com/tangzhangming/dexdec/internal/i18n"
)

// ============================================================================
// 修复建议生成器
// ============================================================================

// SuggestionGenerator 修复建议生成器
type SuggestionGenerator struct{}

// NewSuggestionGenerator 创建修复建议生成器
func NewSuggestionGenerator() *SuggestionGenerator {
	return &SuggestionGenerator{}
}

// GetSuggestions 根据错误码和上下文获取额外的修复建议
//
// 上下文键：
//   - "irreducible" int: 不可归约边的数量
//   - "name" string: 未解析成员名
//   - "candidates" []string: 同一类中已声明的成员名
func (g *SuggestionGenerator) GetSuggestions(code string, context map[string]interface{}) []string {
	switch code {
	case W0001:
		return g.residualGotoSuggestions(context)
	case W0002:
		return g.unresolvedSuggestions(context)
	}
	return nil
}

func (g *SuggestionGenerator) residualGotoSuggestions(context map[string]interface{}) []string {
	// 可归约的图产生 goto 时，换一种循环形状通常能消除它
	if n, ok := context["irreducible"].(int); ok && n == 0 {
		return []string{i18n.T(i18n.HintLoopPolicy)}
	}
	return nil
}

func (g *SuggestionGenerator) unresolvedSuggestions(context map[string]interface{}) []string {
	name, _ := context["name"].(string)
	candidates, _ := context["candidates"].([]string)
	if name == "" || len(candidates) == 0 {
		return nil
	}
	if similar := FindSimilar(name, candidates, 2); similar != "" {
		return []string{i18n.T(i18n.HintDidYouMean, similar)}
	}
	return nil
}

// FindSimilar 在候选中查找编辑距离不超过 maxDistance 的最近名称
func FindSimilar(name string, candidates []string, maxDistance int) string {
	bestMatch := ""
	bestDistance := maxDistance + 1

	for _, candidate := range candidates {
		if candidate == name {
			continue
		}
		distance := levenshteinDistance(name, candidate)
		if distance < bestDistance {
			bestDistance = distance
			bestMatch = candidate
		}
	}

	if bestDistance <= maxDistance {
		return bestMatch
	}
	return ""
}

// levenshteinDistance 计算 Levenshtein 编辑距离（忽略大小写）
func levenshteinDistance(s1, s2 string) int {
	s1 = strings.ToLower(s1)
	s2 = strings.ToLower(s2)
	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}

	prev := make([]int, len(s2)+1)
	cur := make([]int, len(s2)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(s1); i++ {
		cur[0] = i
		for j := 1; j <= len(s2); j++ {
			cost := 1
			if s1[i-1] == s2[j-1] {
				cost = 0
			}
			cur[j] = minInt(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(s2)]
}

func minInt(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

// ============================================================================
// 全局生成器
// ============================================================================

var defaultGenerator = NewSuggestionGenerator()

// GetSuggestions 使用默认生成器获取修复建议
func GetSuggestions(code string, context map[string]interface{}) []string {
	return defaultGenerator.GetSuggestions(code, context)
}
