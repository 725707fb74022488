package pokedex

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Pokemon models the subset of the upstream record the tooling consumes.
// Height arrives in decimetres and weight in hectograms, per the API schema.
type Pokemon struct {
	Name   string        `json:"name"`
	Height int           `json:"height"`
	Weight int           `json:"weight"`
	Types  []PokemonType `json:"types"`
}

// PokemonType is one slot/type pair from the record.
type PokemonType struct {
	Slot int           `json:"slot"`
	Type NamedResource `json:"type"`
}

// NamedResource is the API's generic named reference.
type NamedResource struct {
	Name string `json:"name"`
}

// ParsePokemon decodes a raw record body. Bodies missing the required fields
// are classified as malformed and therefore terminal.
func ParsePokemon(body []byte) (Pokemon, error) {
	var p Pokemon
	if err := json.Unmarshal(body, &p); err != nil {
		return Pokemon{}, fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	if p.Name == "" || len(p.Types) == 0 {
		return Pokemon{}, fmt.Errorf("%w: missing name or types", ErrMalformedBody)
	}
	return p, nil
}

// HeightMeters converts the API's decimetre height.
func (p Pokemon) HeightMeters() float64 {
	return float64(p.Height) / 10
}

// WeightKilograms converts the API's hectogram weight.
func (p Pokemon) WeightKilograms() float64 {
	return float64(p.Weight) / 10
}

// PrimaryType returns the lowest-slot type name.
func (p Pokemon) PrimaryType() string {
	if len(p.Types) == 0 {
		return ""
	}
	primary := p.Types[0]
	for _, t := range p.Types[1:] {
		if t.Slot < primary.Slot {
			primary = t
		}
	}
	return primary.Type.Name
}

// Summary renders the human-readable sentence printed by the extract command.
func (p Pokemon) Summary() string {
	return fmt.Sprintf("%s is of type %s, weighs %skg, and is %sm tall.",
		capitalize(p.Name), p.PrimaryType(), trimZeros(p.WeightKilograms()), trimZeros(p.HeightMeters()))
}

// capitalize upper-cases the first rune of s.
func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func trimZeros(v float64) string {
	s := fmt.Sprintf("%.1f", v)
	s = strings.TrimSuffix(s, ".0")
	return s
}
