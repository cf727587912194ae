package sentiment

import (
	"regexp"
	"strings"
)

// urlCandidatePattern はテキスト中のURLらしき部分を拾う。
// 空白・カンマ・引用符・括弧・山括弧はURLの区切りとして扱う。
var urlCandidatePattern = regexp.MustCompile(`(?i)https?://[^\s,"'()<>]+`)

// imageURLPattern は画像拡張子で終わるURL（クエリ文字列は任意）にマッチする。
var imageURLPattern = regexp.MustCompile(`(?i)^https?://\S+\.(?:png|jpe?g|gif|webp|bmp)(?:\?\S*)?$`)

// trailingPunctuation は文末でURLの直後に付きやすい記号。
const trailingPunctuation = ".;:!?"

// ExtractMediaRefs はテキスト中の画像URLを出現順に返す。
// ネットワークアクセスは行わない。該当がなければ空スライスを返す。
func ExtractMediaRefs(text string) []string {
	refs := []string{}
	for _, candidate := range urlCandidatePattern.FindAllString(text, -1) {
		candidate = strings.TrimRight(candidate, trailingPunctuation)
		if imageURLPattern.MatchString(candidate) {
			refs = append(refs, candidate)
		}
	}
	return refs
}
