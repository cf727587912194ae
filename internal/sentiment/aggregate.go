package sentiment

import "github.com/hitoshi/socialsense/internal/model"

// Distribution は認識ラベルごとの割合（パーセント）。
type Distribution struct {
	Positive float64
	Negative float64
	Neutral  float64
}

// Aggregate はラベル列を集計して割合を返す。
// 分母はラベルの総数。認識できないラベルは分母にだけ数える。
// 空の場合はすべて0を返す。
func Aggregate(labels []string) Distribution {
	if len(labels) == 0 {
		return Distribution{}
	}

	var positive, negative, neutral int
	for _, label := range labels {
		switch label {
		case model.LabelPositive:
			positive++
		case model.LabelNegative:
			negative++
		case model.LabelNeutral:
			neutral++
		}
	}

	total := float64(len(labels))
	return Distribution{
		Positive: float64(positive) / total * 100,
		Negative: float64(negative) / total * 100,
		Neutral:  float64(neutral) / total * 100,
	}
}
