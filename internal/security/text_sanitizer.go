package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer は臨床記録の自由記述欄からHTMLを除去する。
// 保存する値はプレーンテキストで、フロントエンドはテキストとして描画する。
type TextSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerを生成する。
// bluemondayのStrictPolicyによりすべてのタグと属性を除去する。
func NewTextSanitizer() *TextSanitizer {
	return &TextSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はタグを除去し、エスケープされた実体参照を元の文字に戻して前後の空白を除く。
// 同一入力に対して常に同一出力を返す。
func (s *TextSanitizer) Sanitize(text string) string {
	if text == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(text)))
}

// SanitizePtr はnilでない場合のみSanitizeを適用する。部分更新の入力に使う。
func (s *TextSanitizer) SanitizePtr(text *string) *string {
	if text == nil {
		return nil
	}
	v := s.Sanitize(*text)
	return &v
}
