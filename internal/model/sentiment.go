package model

// 認識するセンチメントラベル
const (
	LabelPositive = "positive"
	LabelNegative = "negative"
	LabelNeutral  = "neutral"
)

// Prediction はコメント1件分の分類結果。
type Prediction struct {
	Comment   string   `json:"comment"`
	Label     string   `json:"label"`
	MediaRefs []string `json:"media_refs"`
}

// SentimentReport は分類リクエスト全体の結果。
// 割合はパーセント（0〜100）で表す。
type SentimentReport struct {
	Predictions []Prediction `json:"predictions"`
	Positive    float64      `json:"positive"`
	Negative    float64      `json:"negative"`
	Neutral     float64      `json:"neutral"`
}
