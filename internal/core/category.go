package core

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Category is the closed set of Angel5000 classification tags.
type Category uint8

const (
	CategoryInvalid Category = iota
	MegaWinner
	PotentialUnicorn
	NonUnicorn
	IndexConstituent
	ObservedGrowth
	HistoricOutlier
)

var ErrUnknownCategory = errors.New("unknown category")

// Badge is how a categorical value is presented: a human label and a color token.
type Badge struct {
	Slug  string `json:"slug"`
	Label string `json:"label"`
	Color string `json:"color"`
}

var categoryBadges = [...]Badge{
	MegaWinner:       {Slug: "mega-winner", Label: "Historic Outlier", Color: "purple"},
	PotentialUnicorn: {Slug: "potential-unicorn", Label: "Index Constituent", Color: "blue"},
	NonUnicorn:       {Slug: "non-unicorn", Label: "Non-Unicorn", Color: "gray"},
	IndexConstituent: {Slug: "index-constituent", Label: "Index Constituent", Color: "blue"},
	ObservedGrowth:   {Slug: "observed-growth", Label: "Observed Growth", Color: "emerald"},
	HistoricOutlier:  {Slug: "historic-outlier", Label: "Historic Outlier", Color: "purple"},
}

// Categories lists every valid category in declaration order.
func Categories() []Category {
	return []Category{MegaWinner, PotentialUnicorn, NonUnicorn, IndexConstituent, ObservedGrowth, HistoricOutlier}
}

// ParseCategory maps a slug such as "mega-winner" to its Category.
func ParseCategory(slug string) (Category, error) {
	for _, c := range Categories() {
		if categoryBadges[c].Slug == slug {
			return c, nil
		}
	}
	return CategoryInvalid, fmt.Errorf("%w: %q", ErrUnknownCategory, slug)
}

func (c Category) IsValid() bool {
	return c > CategoryInvalid && int(c) < len(categoryBadges)
}

func (c Category) String() string {
	if !c.IsValid() {
		return ""
	}
	return categoryBadges[c].Slug
}

// Badge returns the label and color for c. Invalid categories have no badge.
func (c Category) Badge() (Badge, bool) {
	if !c.IsValid() {
		return Badge{}, false
	}
	return categoryBadges[c], true
}

func (c Category) MarshalJSON() ([]byte, error) {
	if !c.IsValid() {
		return nil, fmt.Errorf("marshal category %d: %w", c, ErrUnknownCategory)
	}
	return json.Marshal(c.String())
}

func (c *Category) UnmarshalJSON(b []byte) error {
	var slug string
	if err := json.Unmarshal(b, &slug); err != nil {
		return fmt.Errorf("category must be a string: %w", err)
	}
	parsed, err := ParseCategory(slug)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// statusBadges covers the remaining categorical company fields shown as badges.
var statusBadges = map[string]Badge{
	"universe-only":    {Slug: "universe-only", Label: "Universe-Only", Color: "gray"},
	"active":           {Slug: "active", Label: "Active", Color: "green"},
	"exited":           {Slug: "exited", Label: "Exited", Color: "amber"},
	"dormant":          {Slug: "dormant", Label: "Dormant", Color: "gray"},
	"verified-company": {Slug: "verified-company", Label: "Verified Company", Color: "teal"},
	"verified-founder": {Slug: "verified-founder", Label: "Verified Founder", Color: "teal"},
	"eligible":         {Slug: "eligible", Label: "Eligible (Universe)", Color: "indigo"},
	"steady-state":     {Slug: "steady-state", Label: "Steady-State", Color: "slate"},
	"full-profile":     {Slug: "full-profile", Label: "Full Profile", Color: "cyan"},
	"partial-profile":  {Slug: "partial-profile", Label: "Partial Profile", Color: "gray"},
}

// LookupBadge resolves any badge slug, category or status. Unknown slugs
// report false rather than a catch-all badge.
func LookupBadge(slug string) (Badge, bool) {
	if c, err := ParseCategory(slug); err == nil {
		return c.Badge()
	}
	b, ok := statusBadges[slug]
	return b, ok
}

// Badges returns the full badge table, categories first.
func Badges() []Badge {
	out := make([]Badge, 0, len(categoryBadges)+len(statusBadges))
	for _, c := range Categories() {
		out = append(out, categoryBadges[c])
	}
	for _, slug := range []string{
		"universe-only", "active", "exited", "dormant", "verified-company",
		"verified-founder", "eligible", "steady-state", "full-profile", "partial-profile",
	} {
		out = append(out, statusBadges[slug])
	}
	return out
}
