package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はユーザー入力のプレーンテキストからマークアップを除去する。
// タスクのタイトル・詳細、プロフィール名の保存前に使用する。
type TextSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerを生成する。
// bluemondayのStrictPolicyで全てのタグを除去する。
func NewTextSanitizer() *TextSanitizer {
	return &TextSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はタグを除去し、前後の空白を取り除いたテキストを返す。
// StrictPolicyがエスケープした文字実体参照は元に戻す。JSONで返すため二重エスケープを避ける。
func (s *TextSanitizer) Sanitize(input string) string {
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(input)))
}
