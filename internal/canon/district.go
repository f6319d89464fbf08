package canon

import (
	"regexp"
	"sort"
	"strings"
)

var reSpaces = regexp.MustCompile(`\s+`)

// districts maps the fixed district keys to the display names the backend
// expects in search filters.
var districts = map[string]string{
	"admiralteisky":    "Адмиралтейский",
	"vasileostrovsky":  "Василеостровский",
	"vyborgsky":        "Выборгский",
	"kalininsky":       "Калининский",
	"kirovsky":         "Кировский",
	"kolpinsky":        "Колпинский",
	"krasnogvardeisky": "Красногвардейский",
	"krasnoselsky":     "Красносельский",
	"kronshtadtsky":    "Кронштадтский",
	"kurortny":         "Курортный",
	"moskovsky":        "Московский",
	"nevsky":           "Невский",
	"petrogradsky":     "Петроградский",
	"petrodvortsovy":   "Петродворцовый",
	"primorsky":        "Приморский",
	"pushkinsky":       "Пушкинский",
	"frunzensky":       "Фрунзенский",
	"centralny":        "Центральный",
}

// DistrictName returns the backend display name for a district key.
// Unknown keys pass through unchanged so free-text filters still reach the backend.
func DistrictName(key string) string {
	k := strings.ToLower(strings.TrimSpace(key))
	if v, ok := districts[k]; ok {
		return v
	}
	return strings.TrimSpace(key)
}

// DistrictKey maps either a key or a display name back to the key.
// The second result is false when the input is not a known district.
func DistrictKey(s string) (string, bool) {
	n := strings.ToLower(collapse(s))
	if _, ok := districts[n]; ok {
		return n, true
	}
	for k, v := range districts {
		if strings.ToLower(v) == n {
			return k, true
		}
	}
	return "", false
}

// DistrictKeys lists the known keys in stable order.
func DistrictKeys() []string {
	out := make([]string, 0, len(districts))
	for k := range districts {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

const KindOther = "другое"

var kindSynonyms = map[string]string{
	"кошка":    "кошка",
	"кот":      "кошка",
	"котенок":  "кошка",
	"котёнок":  "кошка",
	"cat":      "кошка",
	"собака":   "собака",
	"пес":      "собака",
	"пёс":      "собака",
	"щенок":    "собака",
	"dog":      "собака",
	"птица":    "птица",
	"попугай":  "птица",
	"bird":     "птица",
	"кролик":   "кролик",
	"rabbit":   "кролик",
	"хомяк":    "хомяк",
	"hamster":  "хомяк",
	"черепаха": "черепаха",
	"turtle":   "черепаха",
	"хорек":    "хорек",
	"хорёк":    "хорек",
	"ferret":   "хорек",
	"другое":   KindOther,
	"other":    KindOther,
}

// Kind canonicalizes a species string. Known synonyms collapse to one
// spelling; anything else is kept as trimmed, lower-cased free text.
func Kind(s string) string {
	n := strings.ToLower(collapse(s))
	if n == "" {
		return ""
	}
	if v, ok := kindSynonyms[n]; ok {
		return v
	}
	return n
}

func collapse(s string) string {
	return strings.TrimSpace(reSpaces.ReplaceAllString(s, " "))
}
