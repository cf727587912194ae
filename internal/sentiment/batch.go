package sentiment

import "strings"

// DefaultDelimiter はコメントの既定の区切り文字。
const DefaultDelimiter = "\n"

// Entry は分類対象のコメント1件。
type Entry struct {
	Text      string
	MediaRefs []string
}

// BuildBatch は生テキストを区切り文字で分割し、分類対象の一覧を作る。
// 各要素は前後の空白を除去し、空になったものは捨てる。
// delimiterが空の場合はDefaultDelimiterを使う。
func BuildBatch(raw, delimiter string) []Entry {
	if delimiter == "" {
		delimiter = DefaultDelimiter
	}

	var batch []Entry
	for _, segment := range strings.Split(raw, delimiter) {
		text := strings.TrimSpace(segment)
		if text == "" {
			continue
		}
		batch = append(batch, Entry{
			Text:      text,
			MediaRefs: ExtractMediaRefs(text),
		})
	}
	return batch
}
