package classifier

import (
	"wisefido-escalation/internal/models"
)

// keywordRule maps one transcript phrase to a category, a confidence weight
// and the severity it implies on its own. Weights accumulate across matches;
// severity is the maximum over all matches.
type keywordRule struct {
	Phrase   string
	Category models.Category
	Weight   float64
	Severity models.Severity
}

// keywordRules is the fixed scoring vocabulary, matched case-insensitively.
// Order matters for the reported keyword sequence when two phrases start at
// the same offset.
var keywordRules = []keywordRule{
	// fall
	{"i fell", models.CategoryFall, 0.60, models.SeverityCritical},
	{"fell down", models.CategoryFall, 0.55, models.SeverityHigh},
	{"i've fallen", models.CategoryFall, 0.60, models.SeverityCritical},
	{"can't get up", models.CategoryFall, 0.50, models.SeverityCritical},
	{"cannot get up", models.CategoryFall, 0.50, models.SeverityCritical},
	{"on the floor", models.CategoryFall, 0.35, models.SeverityHigh},
	{"slipped", models.CategoryFall, 0.40, models.SeverityHigh},

	// medical
	{"chest pain", models.CategoryMedical, 0.70, models.SeverityCritical},
	{"can't breathe", models.CategoryMedical, 0.70, models.SeverityCritical},
	{"hard to breathe", models.CategoryMedical, 0.60, models.SeverityHigh},
	{"bleeding", models.CategoryMedical, 0.55, models.SeverityHigh},
	{"dizzy", models.CategoryMedical, 0.35, models.SeverityMedium},
	{"missed my medication", models.CategoryMedical, 0.30, models.SeverityMedium},
	{"in pain", models.CategoryMedical, 0.30, models.SeverityMedium},

	// distress
	{"i want to die", models.CategoryDistress, 0.80, models.SeverityCritical},
	{"help me", models.CategoryDistress, 0.50, models.SeverityHigh},
	{"i'm scared", models.CategoryDistress, 0.40, models.SeverityMedium},
	{"so scared", models.CategoryDistress, 0.40, models.SeverityMedium},
	{"crying", models.CategoryDistress, 0.30, models.SeverityMedium},

	// confusion
	{"where am i", models.CategoryConfusion, 0.45, models.SeverityMedium},
	{"don't know where", models.CategoryConfusion, 0.40, models.SeverityMedium},
	{"can't remember", models.CategoryConfusion, 0.30, models.SeverityMedium},
	{"what day is it", models.CategoryConfusion, 0.25, models.SeverityLow},

	// abuse-disclosure
	{"hit me", models.CategoryAbuseDisclosure, 0.70, models.SeverityCritical},
	{"hurt me", models.CategoryAbuseDisclosure, 0.60, models.SeverityHigh},
	{"took my money", models.CategoryAbuseDisclosure, 0.50, models.SeverityHigh},
	{"yells at me", models.CategoryAbuseDisclosure, 0.40, models.SeverityMedium},
}
