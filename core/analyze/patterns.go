package analyze

import (
	"regexp"
	"strings"

	"github.com/medgrain/clinctx/model"
)

// intentGroup is one ordered pattern group for intent classification.
// Groups are evaluated in declaration order; the group with the most
// matching phrases wins, earlier declaration breaking ties.
type intentGroup struct {
	Intent  model.Intent
	Phrases []string
}

// intentGroups is the ordered intent taxonomy. Phrases are matched
// case-insensitively as substrings of the normalized query.
var intentGroups = []intentGroup{
	{
		Intent: model.IntentList,
		Phrases: []string{
			"what medications",
			"which medications",
			"what drugs",
			"which drugs",
			"list of",
			"list all",
			"current medications",
			"all medications",
			"taking any",
			"is the patient on",
		},
	},
	{
		Intent: model.IntentValue,
		Phrases: []string{
			"what is the",
			"what was the",
			"value of",
			"level of",
			"result of",
			"how high",
			"how low",
			"reading of",
			"measurement",
		},
	},
	{
		Intent: model.IntentStatus,
		Phrases: []string{
			"status of",
			"how is the",
			"under control",
			"controlled",
			"stable",
			"still active",
			"currently",
			"is the patient still",
		},
	},
	{
		Intent: model.IntentHistory,
		Phrases: []string{
			"history of",
			"history",
			"over time",
			"course of",
			"when did",
			"how long",
			"progression",
			"previously",
			"in the past",
		},
	},
	{
		Intent: model.IntentRecent,
		Phrases: []string{
			"recent",
			"recently",
			"latest",
			"most recent",
			"newest",
			"last visit",
			"new results",
		},
	},
	{
		Intent: model.IntentSummary,
		Phrases: []string{
			"summarize",
			"summary",
			"overview",
			"overall",
			"big picture",
			"tell me about the patient",
			"general condition",
		},
	},
}

// sourcesByIntent is the exhaustive intent to data-source scope table.
// Missing entries are a test-time concern, not a silent runtime default.
var sourcesByIntent = map[model.Intent][]model.SourceType{
	model.IntentList:    {model.SourceMedication},
	model.IntentValue:   {model.SourceLabResult, model.SourceVitalSign},
	model.IntentStatus:  {model.SourceMedication, model.SourceEncounter, model.SourceDocument},
	model.IntentHistory: model.AllSourceTypes(),
	model.IntentRecent:  model.AllSourceTypes(),
	model.IntentSummary: model.AllSourceTypes(),
	model.IntentGeneral: model.AllSourceTypes(),
}

// Known vocabularies for dictionary-based entity extraction. These are
// deliberately incomplete; completeness is a non-goal.
var medicationVocabulary = []string{
	"metformin", "insulin", "lisinopril", "amlodipine", "atorvastatin",
	"simvastatin", "losartan", "metoprolol", "carvedilol", "aspirin",
	"warfarin", "apixaban", "clopidogrel", "omeprazole", "pantoprazole",
	"levothyroxine", "albuterol", "fluticasone", "prednisone", "gabapentin",
	"sertraline", "escitalopram", "hydrochlorothiazide", "furosemide",
	"ibuprofen", "acetaminophen", "amoxicillin", "azithromycin",
}

var labVocabulary = []string{
	"hba1c", "a1c", "glucose", "hemoglobin", "hematocrit", "creatinine",
	"egfr", "bun", "sodium", "potassium", "chloride", "calcium",
	"cholesterol", "ldl", "hdl", "triglycerides", "tsh", "t4",
	"alt", "ast", "bilirubin", "albumin", "inr", "wbc", "platelets",
	"vitamin d", "ferritin", "troponin",
}

var conditionVocabulary = []string{
	"diabetes", "hypertension", "hyperlipidemia", "asthma", "copd",
	"hypothyroidism", "hyperthyroidism", "depression", "anxiety",
	"atrial fibrillation", "heart failure", "coronary artery disease",
	"chronic kidney disease", "ckd", "anemia", "osteoporosis",
	"pneumonia", "obesity", "gerd", "stroke",
}

// stopwords excluded from keyword extraction
var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true,
	"this": true, "was": true, "are": true, "has": true, "have": true,
	"had": true, "does": true, "did": true, "any": true, "all": true,
	"his": true, "her": true, "its": true, "is": true, "on": true,
	"of": true, "in": true, "to": true, "a": true, "an": true,
	"what": true, "which": true, "when": true, "how": true, "who": true,
	"patient": true, "patients": true, "show": true, "tell": true,
	"me": true, "about": true, "please": true,
}

var wordSplitter = regexp.MustCompile(`[^a-z0-9]+`)

// vocabularyRegex compiles a vocabulary into a single case-insensitive
// word-boundary matcher
func vocabularyRegex(terms []string) *regexp.Regexp {
	escaped := make([]string, len(terms))
	for i, t := range terms {
		escaped[i] = regexp.QuoteMeta(t)
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(escaped, "|") + `)\b`)
}

var (
	medicationRegex = vocabularyRegex(medicationVocabulary)
	labRegex        = vocabularyRegex(labVocabulary)
	conditionRegex  = vocabularyRegex(conditionVocabulary)
)
