package providers

// SystemPrompt asks for an objective analysis that never identifies the person.
const SystemPrompt = "ユーザーから、人が写った動画の分析を頼まれます。人を特定することなく、一般的、客観的に動画の場面を分析してください。出力は与えられるマークダウン形式に従ってください。"

// AnalysisPrompt is the interviewer brief with the markdown template to fill.
const AnalysisPrompt = `あなたは大学受験の面接官です。この面接を受けた受験生の動画を分析して、表情やジェスチャー、コミュニケーションの観点から一般的なフィードバックを日本語で提供してください。以下の項目について分析してください：

1. 表情の分析（感情表現、目の表情、口元の表現）
2. ジェスチャーの分析（手の動き、体の姿勢、頭の動き）
3. コミュニケーション効果（聞き手への印象）

それぞれの項目について、「良い点」と「改善点」をそれぞれ文章でまとめ、100点満点で「点数」を出してください。出力は次のマークダウン形式のxxxの部分を埋めるようにしてください。人物の顔認識や個人特定を避けるため、動画の分析は一般的な表情やジェスチャーに基づいて行ってください。

## 動画分析結果
### 1. 表情の分析
- 良い点：xxx
- 改善点：xxx
- 点数：xxx
### 2. ジェスチャーの分析
- 良い点：xxx
- 改善点：xxx
- 点数：xxx
### 3. コミュニケーション効果
- 良い点：xxx
- 改善点：xxx
- 点数：xxx`

// FallbackAnalysis is returned when a provider answers with no text.
const FallbackAnalysis = "分析結果を取得できませんでした。"

// CombinedPrompt joins both prompts for providers that take a single text part.
func CombinedPrompt() string {
	return SystemPrompt + "\n\n" + AnalysisPrompt
}
