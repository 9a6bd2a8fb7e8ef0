package matcher

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"

	"github.com/mmynk/vereinsledger/internal/models"
)

// ClaimReference is a parsed "F<claimID>-<year>" token.
type ClaimReference struct {
	ClaimID int64
	Year    int
}

func (r ClaimReference) String() string {
	return "F" + strconv.FormatInt(r.ClaimID, 10) + "-" + strconv.Itoa(r.Year)
}

var referencePattern = regexp.MustCompile(`(?i)\bF(\d{1,18})-(\d{4})\b`)

// ParseClaimReferences extracts all distinct claim reference tokens from a
// remittance text, in order of appearance.
func ParseClaimReferences(text string) []ClaimReference {
	var refs []ClaimReference
	seen := make(map[ClaimReference]bool)
	for _, m := range referencePattern.FindAllStringSubmatch(text, -1) {
		id, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil || id == 0 {
			continue
		}
		year, _ := strconv.Atoi(m[2])
		ref := ClaimReference{ClaimID: id, Year: year}
		if !seen[ref] {
			seen[ref] = true
			refs = append(refs, ref)
		}
	}
	return refs
}

// noise are name tokens that say nothing about who a person is.
var noise = map[string]bool{
	"herr": true, "frau": true, "dr": true, "prof": true,
	"und": true, "u": true, "eheleute": true, "familie": true, "fam": true,
}

func nameTokens(name string) []string {
	var tokens []string
	for _, tok := range strings.Fields(models.NormalizeName(name)) {
		if len(tok) < 2 || noise[tok] {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

var editOptions = levenshtein.Options{
	InsCost: 1,
	DelCost: 1,
	SubCost: 1,
	Matches: levenshtein.IdenticalRunes,
}

// allowedEdits is the typo budget for a token of the given length.
func allowedEdits(n int) int {
	switch {
	case n >= 9:
		return 2
	case n >= 5:
		return 1
	default:
		return 0
	}
}

func tokensMatch(a, b string) bool {
	if a == b {
		return true
	}
	ra, rb := []rune(a), []rune(b)
	budget := allowedEdits(min(len(ra), len(rb)))
	if budget == 0 {
		return false
	}
	return levenshtein.DistanceForStrings(ra, rb, editOptions) <= budget
}

// NameSimilarity scores how well a bank counterparty name covers a member's
// name: the share of the member's name tokens found among the counterparty's
// tokens, each allowed a small number of typos. Word order does not matter.
// The result is in [0, 1].
func NameSimilarity(counterparty, memberName string) float64 {
	memberTokens := nameTokens(memberName)
	if len(memberTokens) == 0 {
		return 0
	}
	counterTokens := nameTokens(counterparty)

	used := make([]bool, len(counterTokens))
	found := 0
	for _, mt := range memberTokens {
		for i, ct := range counterTokens {
			if !used[i] && tokensMatch(mt, ct) {
				used[i] = true
				found++
				break
			}
		}
	}
	return float64(found) / float64(len(memberTokens))
}
