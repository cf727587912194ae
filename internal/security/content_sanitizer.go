package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService はHTMLをプレーンテキストにする機能のインターフェースを定義する。
// 上流APIが返したHTMLのエラーページを呼び出し元に返す前に使用される。
type ContentSanitizerService interface {
	// PlainText はHTMLタグをすべて取り除いたプレーンテキストを返す。
	// script・styleの中身は捨て、文字参照は元の文字に戻す。
	// 同一入力に対して常に同一出力を返す。
	PlainText(raw string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーはスレッドセーフに共有できる。
type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
func NewContentSanitizer() *contentSanitizer {
	return &contentSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// PlainText はHTMLを取り除いたプレーンテキストを返す。
func (s *contentSanitizer) PlainText(raw string) string {
	if raw == "" {
		return ""
	}
	// StrictPolicyは残したテキストをエスケープするので元に戻す
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(raw)))
}
