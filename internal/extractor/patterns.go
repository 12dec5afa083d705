package extractor

import (
	"regexp"

	"carelink-signal/internal/models"
)

// symptomPattern 单条症状匹配规则
// 若正则含捕获组，第一个捕获组作为身体部位
type symptomPattern struct {
	re       *regexp.Regexp
	severity models.Severity
}

// categoryPatterns 一个症状分类下的规则集（按顺序尝试，先匹配者生效）
type categoryPatterns struct {
	symptomType models.SymptomType
	patterns    []symptomPattern
}

// defaultPatterns 内置症状规则表
// 分类优先级为固定顺序：pain → fall → breathing → appetite → sleep → dizziness → loneliness
// 每个分类内部"先匹配者生效"，每条语句每个分类最多产生一条事件
func defaultPatterns() []categoryPatterns {
	return []categoryPatterns{
		{
			symptomType: models.SymptomPain,
			patterns: []symptomPattern{
				{re: regexp.MustCompile(`(?i)\b(?:unbearable|excruciating|terrible|awful|severe) pain\b`), severity: models.SeverityHigh},
				{re: regexp.MustCompile(`(?i)\bmy ([a-z]+) (?:is|are)(?: really| very| so)? (?:sore|aching|hurting|painful)\b`), severity: models.SeverityMedium},
				{re: regexp.MustCompile(`(?i)\bpain in my ([a-z]+)\b`), severity: models.SeverityMedium},
				{re: regexp.MustCompile(`(?i)\bmy ([a-z]+) hurts\b`), severity: models.SeverityMedium},
				{re: regexp.MustCompile(`(?i)\b(?:hurts?|aching|in pain)\b`), severity: models.SeverityLow},
			},
		},
		{
			symptomType: models.SymptomFall,
			patterns: []symptomPattern{
				{re: regexp.MustCompile(`(?i)\bi (?:fell(?: over| down)?|had a fall|slipped and fell)\b`), severity: models.SeverityHigh},
				{re: regexp.MustCompile(`(?i)\b(?:nearly|almost) fell\b`), severity: models.SeverityMedium},
			},
		},
		{
			symptomType: models.SymptomBreathing,
			patterns: []symptomPattern{
				{re: regexp.MustCompile(`(?i)\b(?:can'?t|cannot|struggling to|hard to) breathe?\b`), severity: models.SeverityHigh},
				{re: regexp.MustCompile(`(?i)\b(?:short of breath|breathless|out of breath)\b`), severity: models.SeverityMedium},
			},
		},
		{
			symptomType: models.SymptomAppetite,
			patterns: []symptomPattern{
				{re: regexp.MustCompile(`(?i)\b(?:no appetite|not (?:been )?hungry|don'?t feel like eating|haven'?t (?:been )?eat(?:en|ing))\b`), severity: models.SeverityMedium},
			},
		},
		{
			symptomType: models.SymptomSleep,
			patterns: []symptomPattern{
				{re: regexp.MustCompile(`(?i)\b(?:couldn'?t|can'?t|didn'?t) sleep\b`), severity: models.SeverityMedium},
				{re: regexp.MustCompile(`(?i)\b(?:awake all night|barely slept|no sleep)\b`), severity: models.SeverityMedium},
			},
		},
		{
			symptomType: models.SymptomDizziness,
			patterns: []symptomPattern{
				{re: regexp.MustCompile(`(?i)\b(?:dizzy|light-?headed|room (?:is|was) spinning)\b`), severity: models.SeverityMedium},
			},
		},
		{
			symptomType: models.SymptomLoneliness,
			patterns: []symptomPattern{
				{re: regexp.MustCompile(`(?i)\b(?:so lonely|all alone|no one (?:visits|comes|calls))\b`), severity: models.SeverityLow},
			},
		},
	}
}

// 词汇极性表（用于在外部情绪提示基础上做局部修正）
var positiveWords = []string{
	"good", "great", "lovely", "happy", "wonderful", "better",
	"enjoyed", "nice", "cheerful", "glad",
}

var negativeWords = []string{
	"sad", "tired", "awful", "terrible", "bad", "miserable",
	"worse", "upset", "worried", "scared", "exhausted",
}
