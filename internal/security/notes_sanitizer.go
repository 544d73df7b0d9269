// Package security はアプリケーションのセキュリティ機能を提供する。
//
// NotesSanitizerService はプロバイダやクライアントから受け取った
// イベント本文（説明文）のHTMLをサニタイズし、保存・表示時の
// XSSリスクを除去する。bluemondayの許可リストベースのポリシーで、
// 安全なタグと属性のみを通過させる。
package security

import (
	"github.com/microcosm-cc/bluemonday"
)

// NotesSanitizerService はイベント本文のサニタイズ機能のインターフェースを定義する。
// イベント保存前に使用される。
type NotesSanitizerService interface {
	// Sanitize はHTMLを含みうる本文をサニタイズして安全なHTMLを返す。
	// 許可タグ（p, br, a, ul, ol, li, b, i, strong, em）のみを通過させ、
	// script, iframe, styleタグおよびon*イベント属性を除去する。
	// aタグにはrel="noopener noreferrer"が自動付与される。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// notesSanitizer はNotesSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type notesSanitizer struct {
	policy *bluemonday.Policy
}

// NewNotesSanitizer はNotesSanitizerServiceの新しいインスタンスを生成する。
// Googleカレンダーのdescriptionが許容する範囲に合わせた許可リストを構築する。
func NewNotesSanitizer() *notesSanitizer {
	p := bluemonday.NewPolicy()

	// Googleカレンダーのdescriptionで使われる基本タグのみ許可する。
	// script, iframe, style等は許可リストに含めないことで自動的に除去される。
	// on*イベント属性はbluemondayのデフォルトで許可されない。
	p.AllowElements(
		"p", "br", "ul", "ol", "li",
		"b", "i", "strong", "em",
	)

	// リンクはhref属性のみ許可し、rel属性を強制付与する
	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(false)
	p.AllowURLSchemes("http", "https", "mailto")
	p.RequireNoReferrerOnLinks(true)
	p.RequireNoFollowOnLinks(false)

	return &notesSanitizer{policy: p}
}

// Sanitize はHTMLを含みうる本文をサニタイズして安全なHTMLを返す。
func (s *notesSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	return s.policy.Sanitize(raw)
}
