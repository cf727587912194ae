package sentiment

// SystemInstruction は分類エンジンに渡す固定のシステム指示。
const SystemInstruction = "You are a helpful social-media sentiment-analysis assistant. " +
	"You always reply with exactly one word: positive, negative, or neutral."

// Prompt は分類エンジン1回分の入力。system + user の2ロール構成。
// Imagesはuserメッセージのテキストパートの後ろに順に並ぶ画像パート。
type Prompt struct {
	System string
	Text   string
	Images []string
}

// BuildPrompt はコメントと画像参照からプロンプトを組み立てる。
// コメントはHTMLとして解釈せず、そのまま埋め込む。
func BuildPrompt(entry Entry, media []string) Prompt {
	images := make([]string, len(media))
	copy(images, media)

	return Prompt{
		System: SystemInstruction,
		Text:   entry.Text,
		Images: images,
	}
}
