package unit

import "strings"

type Class int

const (
	Piece Class = iota
	Pack
	Bulk
)

func (c Class) String() string {
	switch c {
	case Pack:
		return "pack"
	case Bulk:
		return "bulk"
	default:
		return "piece"
	}
}

const (
	DefaultPiece = "pcs"
	DefaultPack  = "dus"
)

// synonyms maps what speech-to-text tends to produce onto canonical tokens.
var synonyms = map[string]string{
	"bus":       "dus",
	"dos":       "dus",
	"bos":       "dus",
	"doos":      "dus",
	"box":       "dus",
	"kardus":    "dus",
	"pack":      "pak",
	"pek":       "pak",
	"pax":       "pak",
	"pck":       "pak",
	"piece":     "pcs",
	"pieces":    "pcs",
	"pc":        "pcs",
	"biji":      "pcs",
	"buah":      "pcs",
	"butir":     "pcs",
	"bh":        "pcs",
	"kilogram":  "kg",
	"kilo":      "kg",
	"kilo gram": "kg",
	"gram":      "gr",
	"g":         "gr",
	"liter":     "ltr",
	"litre":     "ltr",
	"l":         "ltr",
	"mililiter": "ml",
	"carton":    "karton",
	"dozen":     "lusin",
	"bal":       "ball",
}

var packUnits = map[string]struct{}{
	"dus": {}, "pak": {}, "box": {}, "karton": {}, "lusin": {},
	"krat": {}, "peti": {}, "rim": {}, "ball": {}, "sak": {},
}

var bulkUnits = map[string]struct{}{
	"kg": {}, "gr": {}, "ltr": {}, "ml": {}, "kilo": {}, "kilogram": {},
	"gram": {}, "liter": {}, "ons": {}, "kuintal": {},
}

// Normalize lowercases and trims raw, then maps known variants to their
// canonical token. Unknown strings come back unchanged.
func Normalize(raw string) string {
	cleaned := strings.Join(strings.Fields(strings.ToLower(raw)), " ")
	if canonical, ok := synonyms[cleaned]; ok {
		return canonical
	}
	return cleaned
}

func Classify(u string) Class {
	normalized := Normalize(u)
	if _, ok := packUnits[normalized]; ok {
		return Pack
	}
	if _, ok := bulkUnits[normalized]; ok {
		return Bulk
	}
	return Piece
}

func IsPack(u string) bool {
	return Classify(u) == Pack
}

// SmallUnit returns the unit an item is counted in at its finest
// granularity: bulk units are their own small unit, everything else is pcs.
func SmallUnit(u string) string {
	if Classify(u) == Bulk {
		return Normalize(u)
	}
	return DefaultPiece
}

// OrDefault normalizes u and falls back to pcs for empty input.
func OrDefault(u string) string {
	normalized := Normalize(u)
	if normalized == "" {
		return DefaultPiece
	}
	return normalized
}
