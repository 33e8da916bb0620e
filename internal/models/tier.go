package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Tier is the capability class of a model. Tiers are ordered: a higher
// tier answers harder prompts at a higher per-token price.
type Tier int

const (
	TierFast Tier = iota + 1
	TierSmart
	TierReasoning
)

var tierNames = map[Tier]string{
	TierFast:      "fast",
	TierSmart:     "smart",
	TierReasoning: "reasoning",
}

func (t Tier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return fmt.Sprintf("tier(%d)", int(t))
}

// Valid reports whether t is one of the declared tiers.
func (t Tier) Valid() bool {
	_, ok := tierNames[t]
	return ok
}

// ParseTier converts a tier name to its Tier value. Names are matched
// case-insensitively.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fast":
		return TierFast, nil
	case "smart":
		return TierSmart, nil
	case "reasoning":
		return TierReasoning, nil
	default:
		return 0, fmt.Errorf("unknown tier %q", s)
	}
}

func (t Tier) MarshalJSON() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("cannot marshal invalid tier %d", int(t))
	}
	return json.Marshal(t.String())
}

func (t *Tier) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTier(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
