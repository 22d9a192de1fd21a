package routing

import (
	"regexp"
	"strings"
)

// Pattern lists per task, kept as data so they are testable on their own.
// Each entry is a regex fragment matched case-insensitively on word
// boundaries against the normalized question.

var summaryPatterns = []string{
	"summar(?:y|ize|ise)",
	"overview",
	"recap",
	"brief me",
	"big picture",
}

// Trend detection needs an intent pattern AND a named measurement
var trendIntentPatterns = []string{
	"trend(?:s|ing)?",
	"changed?",
	"changing",
	"over time",
	"progress(?:ion|ing)?",
	"improv(?:ed|ing|ement)",
	"worsen(?:ed|ing)?",
	"increas(?:ed|ing)?",
	"decreas(?:ed|ing)?",
	"compare",
	"history of",
}

var trendEntityPatterns = []string{
	"blood pressure",
	"bp",
	"heart rate",
	"pulse",
	"weight",
	"bmi",
	"temperature",
	"glucose",
	"blood sugar",
	"hba1c",
	"a1c",
	"cholesterol",
	"ldl",
	"hdl",
	"triglycerides",
	"creatinine",
	"egfr",
	"hemoglobin",
	"potassium",
	"sodium",
	"tsh",
	"inr",
}

var medicationContextPatterns = []string{
	"reconcil(?:e|iation)",
	"medication list",
	"med list",
	"current medications?",
	"active medications?",
	"what (?:medications?|meds|drugs)",
	"taking",
	"prescri(?:bed|ption)",
	"drug interactions?",
	"duplicate (?:medications?|therapy)",
}

// Lab interpretation needs lab context AND either interpretation language or
// a normal-range check
var labContextPatterns = []string{
	"labs?",
	"lab results?",
	"blood (?:test|work)",
	"panel",
	"test results?",
}

var interpretationPatterns = []string{
	"interpret",
	"what does .* mean",
	"meaning",
	"explain",
	"significance",
	"why is",
	"concern(?:ed|ing)?",
}

var rangeCheckPatterns = []string{
	"normal",
	"abnormal",
	"within range",
	"out of range",
	"reference range",
	"too (?:high|low)",
	"elevated",
	"high",
	"low",
}

var visionPatterns = []string{
	"image",
	"scan",
	"x[- ]?ray",
	"photo",
	"picture",
	"handwritten",
	"handwriting",
	"read (?:this|the) (?:document|form|note)",
	"extract (?:from|the text)",
}

// Temporal phrasing that marks the question as time-scoped, reused from the
// analyzer's taxonomy in a routing-sized form
var temporalPatterns = []string{
	"recent(?:ly)?",
	"latest",
	"last (?:\\d+ )?(?:days?|weeks?|months?|years?|visit)",
	"past (?:\\d+ )?(?:days?|weeks?|months?|years?)",
	"over time",
	"since",
	"currently?",
	"now",
	"today",
	"this (?:week|month|year)",
}

// Reasoning keywords select the sampling profile even for otherwise factual
// tasks
var reasoningKeywordPatterns = []string{
	"why",
	"explain",
	"interpret",
	"analy(?:ze|se|sis)",
	"compare",
	"assess",
	"evaluate",
	"summar(?:y|ize|ise)",
	"recommend",
}

// compilePatterns joins regex fragments into one word-bounded, case-insensitive matcher
func compilePatterns(fragments []string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(fragments, "|") + `)\b`)
}

var (
	summaryRegex           = compilePatterns(summaryPatterns)
	trendIntentRegex       = compilePatterns(trendIntentPatterns)
	trendEntityRegex       = compilePatterns(trendEntityPatterns)
	medicationContextRegex = compilePatterns(medicationContextPatterns)
	labContextRegex        = compilePatterns(labContextPatterns)
	interpretationRegex    = compilePatterns(interpretationPatterns)
	rangeCheckRegex        = compilePatterns(rangeCheckPatterns)
	visionRegex            = compilePatterns(visionPatterns)
	temporalRegex          = compilePatterns(temporalPatterns)
	reasoningKeywordRegex  = compilePatterns(reasoningKeywordPatterns)
)
