package types

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// USER CRITERIA
// =============================================================================

// ErrNoBudget rejects requests that cannot be planned at all.
var ErrNoBudget = errors.New("criteria: total budget must not be negative")

// Criteria is everything the user told us about the event. It is the root
// belief of a session; workers receive the per-category slice plus the shared
// numeric fields they constrain on.
type Criteria struct {
	UserID      string  `json:"user_id"`
	Description string  `json:"description,omitempty"`
	GuestCount  int     `json:"guest_count"`
	TotalBudget float64 `json:"total_budget"`
	Style       string  `json:"style,omitempty"`
	Location    string  `json:"location,omitempty"`
	EventDate   string  `json:"event_date,omitempty"`

	// Categories holds per-category constraints. Missing categories get an
	// empty CategoryCriteria: absence of constraints is not absence of need.
	Categories map[Category]*CategoryCriteria `json:"categories,omitempty"`

	// SeedURLs lets the user point the crawler at specific vendor pages.
	SeedURLs map[Category][]string `json:"seed_urls,omitempty"`

	// Extra keeps unrecognized request fields so nothing the user said is
	// silently dropped between the API surface and the beliefs.
	Extra Value `json:"extra,omitempty"`
}

// CategoryCriteria narrows one category's search.
type CategoryCriteria struct {
	// Budget is filled by the distributor; a user-supplied value here acts
	// as a cap the distributor must respect.
	Budget float64 `json:"budget,omitempty"`

	// Mandatory maps attribute name to required value. Matching semantics
	// depend on the stored attribute shape: scalars compare exactly, strings
	// case-insensitively by substring, lists by intersection.
	Mandatory Value `json:"mandatory,omitempty"`

	// Optional attributes improve a candidate's score but never filter.
	Optional []string `json:"optional,omitempty"`

	// Keywords feed the retrieval strategy lookup ("rustic", "beachfront").
	Keywords []string `json:"keywords,omitempty"`
}

// Validate rejects requests the planner cannot act on and normalizes the
// pieces everything downstream assumes (category map present, style folded).
func (c *Criteria) Validate() error {
	// Zero is a valid total: the distributor answers with an all-zero split.
	if c.TotalBudget < 0 {
		return ErrNoBudget
	}
	if c.GuestCount < 0 {
		return fmt.Errorf("criteria: guest count %d is negative", c.GuestCount)
	}
	if c.UserID == "" {
		return errors.New("criteria: user id is required")
	}
	c.Style = strings.ToLower(strings.TrimSpace(c.Style))
	if c.Categories == nil {
		c.Categories = make(map[Category]*CategoryCriteria, len(Categories()))
	}
	for _, cat := range Categories() {
		if c.Categories[cat] == nil {
			c.Categories[cat] = &CategoryCriteria{}
		}
	}
	for cat := range c.Categories {
		if !cat.Valid() {
			return fmt.Errorf("criteria: unknown category %q", cat)
		}
	}
	return nil
}

// Clone deep-copies the criteria so a forked correction session can edit its
// copy without aliasing the archived original.
func (c *Criteria) Clone() *Criteria {
	if c == nil {
		return nil
	}
	out := *c
	out.Categories = make(map[Category]*CategoryCriteria, len(c.Categories))
	for cat, cc := range c.Categories {
		if cc == nil {
			out.Categories[cat] = nil
			continue
		}
		dup := *cc
		dup.Mandatory = cc.Mandatory.Clone()
		dup.Optional = append([]string(nil), cc.Optional...)
		dup.Keywords = append([]string(nil), cc.Keywords...)
		out.Categories[cat] = &dup
	}
	out.SeedURLs = make(map[Category][]string, len(c.SeedURLs))
	for cat, urls := range c.SeedURLs {
		out.SeedURLs[cat] = append([]string(nil), urls...)
	}
	out.Extra = c.Extra.Clone()
	return &out
}

// For returns the category slice, never nil. Callers may read freely; writes
// go through the planner which owns the criteria belief.
func (c *Criteria) For(cat Category) *CategoryCriteria {
	if c.Categories == nil {
		return &CategoryCriteria{}
	}
	if cc := c.Categories[cat]; cc != nil {
		return cc
	}
	return &CategoryCriteria{}
}
