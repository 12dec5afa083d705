package extractor

import (
	"strings"

	"carelink-signal/internal/models"
)

// SentimentHint 外部协作方给出的粗粒度情绪提示
type SentimentHint string

const (
	HintPositive SentimentHint = "positive"
	HintNeutral  SentimentHint = "neutral"
	HintNegative SentimentHint = "negative"
)

// Finding 一次提取得到的症状（不含 ID/时间戳，由调用方补全后持久化）
type Finding struct {
	SymptomType models.SymptomType
	Severity    models.Severity
	MatchedSpan string
	BodyPart    *string
}

// Result 提取结果
type Result struct {
	Mood     int // 1-10
	Findings []Finding
}

// Extractor 信号提取器
// 纯函数：相同的语句和提示必定得到相同输出，无隐藏状态、无 I/O，
// 可以安全地在任何持久化决策之前对每条入站语句运行
type Extractor struct {
	categories []categoryPatterns
}

// New 创建提取器（规则表编译一次，之后只读）
func New() *Extractor {
	return &Extractor{
		categories: defaultPatterns(),
	}
}

// Extract 对单条语句提取情绪估计和症状事件
func (e *Extractor) Extract(utterance string, hint SentimentHint) Result {
	findings := e.matchSymptoms(utterance)
	mood := e.scoreMood(utterance, hint, findings)

	return Result{
		Mood:     mood,
		Findings: findings,
	}
}

// matchSymptoms 按固定分类优先级匹配症状
// 每个分类内"先匹配者生效"，避免同义表达被重复计数
func (e *Extractor) matchSymptoms(utterance string) []Finding {
	var findings []Finding

	for _, cat := range e.categories {
		for _, p := range cat.patterns {
			m := p.re.FindStringSubmatch(utterance)
			if m == nil {
				continue
			}

			f := Finding{
				SymptomType: cat.symptomType,
				Severity:    p.severity,
				MatchedSpan: m[0],
			}
			if len(m) > 1 && m[1] != "" {
				part := strings.ToLower(m[1])
				f.BodyPart = &part
			}

			findings = append(findings, f)
			break // 该分类已命中，不再尝试后续规则
		}
	}

	return findings
}

// scoreMood 计算情绪分（1-10）
// 基准来自外部提示，词汇极性和症状命中在其上做修正
func (e *Extractor) scoreMood(utterance string, hint SentimentHint, findings []Finding) int {
	score := 5
	switch hint {
	case HintPositive:
		score = 7
	case HintNegative:
		score = 4
	}

	lower := strings.ToLower(utterance)

	// 词汇极性修正（每个方向最多 ±2）
	posHits := 0
	for _, w := range positiveWords {
		if containsWord(lower, w) {
			posHits++
		}
	}
	negHits := 0
	for _, w := range negativeWords {
		if containsWord(lower, w) {
			negHits++
		}
	}
	if posHits > 2 {
		posHits = 2
	}
	if negHits > 2 {
		negHits = 2
	}
	score += posHits - negHits

	// 症状命中向下修正：high -2，medium -1
	for _, f := range findings {
		switch f.Severity {
		case models.SeverityHigh, models.SeverityCritical:
			score -= 2
		case models.SeverityMedium:
			score--
		}
	}

	return clampMood(score)
}

// containsWord 整词匹配（避免 "bad" 命中 "badge" 这类子串）
func containsWord(text, word string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], word)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(word)

		beforeOK := start == 0 || !isLetter(text[start-1])
		afterOK := end == len(text) || !isLetter(text[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func clampMood(score int) int {
	if score < 1 {
		return 1
	}
	if score > 10 {
		return 10
	}
	return score
}
