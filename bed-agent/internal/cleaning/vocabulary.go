package cleaning

import (
	"strings"

	"github.com/ILLUVRSE/bedflow/bed-agent/internal/textfold"
)

// reversalWindow is how far before a negation cue a second cue turns it into
// an affirmation, as in "no se descarta".
const reversalWindow = 2

// woundMarker is reported when a wound and an infection term share a clause.
const woundMarker = "herida infectada"

// infectionMarkers is the infection-risk vocabulary, already folded.
var infectionMarkers = []string{
	// isolation and transmission precautions
	"aislamiento",
	"aislado",
	"aislada",
	"isolation",
	"isolated",
	"precauciones de contacto",
	"precaucion de contacto",
	"contact precautions",
	"gotitas",
	"droplet",
	"transmision aerea",
	"aerosoles",
	"airborne",
	// multidrug-resistant organisms
	"kpc",
	"sarm",
	"mrsa",
	"erv",
	"vre",
	"blee",
	"esbl",
	"mdr",
	"multirresistente",
	"multi resistente",
	"multidrug",
	// enteric
	"difficile",
	"clostridium",
	"clostridioides",
	// respiratory pandemic pathogens
	"covid",
	"sars cov 2",
	"coronavirus",
	// mycobacteria
	"tuberculosis",
	"tbc",
	// wounds; "herida ... infectada" is matched by woundInfected
	"infected wound",
}

var woundTerms = map[string]bool{
	"herida":  true,
	"heridas": true,
	"wound":   true,
	"wounds":  true,
}

var infectionStems = []string{"infectad", "infeccion", "purulent", "infected"}

var negationCues = map[string]bool{
	"sin":        true,
	"no":         true,
	"without":    true,
	"not":        true,
	"niega":      true,
	"descarta":   true,
	"descartado": true,
	"descartada": true,
}

type marker []string

var compiledMarkers = compileMarkers(infectionMarkers)

func compileMarkers(words []string) []marker {
	out := make([]marker, 0, len(words))
	for _, w := range words {
		out = append(out, strings.Fields(textfold.Fold(w)))
	}
	return out
}

func isClauseBreak(r rune) bool {
	switch r {
	case '.', ',', ';', ':', '(', ')', '\n', '[', ']':
		return true
	}
	return false
}

// findMarkers returns the markers present in text, in vocabulary order, ignoring
// any marker that is negated within its clause.
func findMarkers(text string) []string {
	clauses := strings.FieldsFunc(textfold.Fold(text), isClauseBreak)
	seen := map[int]bool{}
	wound := false
	for _, clause := range clauses {
		tokens := textfold.Words(clause)
		if woundInfected(tokens) {
			wound = true
		}
		for mi, m := range compiledMarkers {
			if seen[mi] {
				continue
			}
			if matchUnnegated(tokens, m) {
				seen[mi] = true
			}
		}
	}
	var found []string
	for mi := range compiledMarkers {
		if seen[mi] {
			found = append(found, strings.Join(compiledMarkers[mi], " "))
		}
	}
	if wound {
		found = append(found, woundMarker)
	}
	return found
}

// woundInfected reports whether a clause names a wound and an unnegated
// infection term, in any order.
func woundInfected(tokens []string) bool {
	hasWound := false
	for _, tok := range tokens {
		if woundTerms[tok] {
			hasWound = true
			break
		}
	}
	if !hasWound {
		return false
	}
	for i, tok := range tokens {
		for _, stem := range infectionStems {
			if strings.HasPrefix(tok, stem) && !negated(tokens, i) {
				return true
			}
		}
	}
	return false
}

func matchUnnegated(tokens []string, m marker) bool {
	for i := 0; i+len(m) <= len(tokens); i++ {
		if !hasPrefix(tokens[i:], m) {
			continue
		}
		if !negated(tokens, i) {
			return true
		}
	}
	return false
}

func hasPrefix(tokens []string, m marker) bool {
	for j, w := range m {
		if tokens[j] != w {
			return false
		}
	}
	return true
}

// negated reports whether the term at tokens[at] is ruled out. Only a cue
// directly before the term negates it, and a second cue shortly before that
// one reverses the negation ("no se descarta tbc").
func negated(tokens []string, at int) bool {
	cue := at - 1
	if cue < 0 || !negationCues[tokens[cue]] {
		return false
	}
	for k := cue - 1; k >= 0 && k >= cue-reversalWindow; k-- {
		if negationCues[tokens[k]] {
			return false
		}
	}
	return true
}
