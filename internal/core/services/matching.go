package services

import (
	"math/rand"

	"pairline/internal/core/domain"
)

// Selection buckets, relative to the requester's gender.
const (
	BucketSame     = "same"
	BucketOpposite = "opposite"
	BucketOther    = "other"
	BucketAny      = "any"
)

const DefaultPreferredWeight = 0.8

// EffectivePreference applies the account-type policy: free accounts may only
// ask for "both" or their own gender, anything else silently becomes "both".
func EffectivePreference(attrs domain.AccountAttributes, requested domain.Preference) domain.Preference {
	if attrs.IsPro() || requested == domain.PreferBoth {
		return requested
	}
	if attrs.Gender != domain.GenderUnspecified && string(requested) == string(attrs.Gender) {
		return requested
	}
	return domain.PreferBoth
}

// Compatible reports whether a and b may be paired given their effective
// preferences.
func Compatible(a *domain.WaitingEntry, b *domain.WaitingEntry) bool {
	if a.UserID == b.UserID {
		return false
	}
	return a.EffectivePreference.SatisfiedBy(b.Attributes.Gender) &&
		b.EffectivePreference.SatisfiedBy(a.Attributes.Gender)
}

// Matcher picks one partner out of a set of compatible candidates.
type Matcher struct {
	rng    *rand.Rand
	weight float64
}

// NewMatcher returns a matcher drawing from rng. weight is the probability of
// trying the account type's favoured bucket first.
func NewMatcher(rng *rand.Rand, weight float64) *Matcher {
	if weight < 0 || weight > 1 {
		weight = DefaultPreferredWeight
	}
	return &Matcher{rng: rng, weight: weight}
}

// Select partitions candidates into same, opposite and other buckets, orders
// the buckets by a weighted draw and picks uniformly from the first non-empty
// one. It returns the bucket the partner came from.
func (m *Matcher) Select(requester *domain.WaitingEntry, candidates []*domain.WaitingEntry) (*domain.WaitingEntry, string) {
	if len(candidates) == 0 {
		return nil, ""
	}

	var same, opposite, other []*domain.WaitingEntry
	self := requester.Attributes.Gender
	for _, c := range candidates {
		switch {
		case self == domain.GenderUnspecified || c.Attributes.Gender == domain.GenderUnspecified:
			other = append(other, c)
		case c.Attributes.Gender == self:
			same = append(same, c)
		default:
			opposite = append(opposite, c)
		}
	}

	// Free accounts lean towards the same gender, pro towards the opposite.
	sameFirst := !requester.Attributes.IsPro()
	if m.rng.Float64() >= m.weight {
		sameFirst = !sameFirst
	}

	type bucket struct {
		name    string
		entries []*domain.WaitingEntry
	}
	order := []bucket{{BucketSame, same}, {BucketOpposite, opposite}, {BucketOther, other}}
	if !sameFirst {
		order[0], order[1] = order[1], order[0]
	}

	for _, b := range order {
		if len(b.entries) > 0 {
			return b.entries[m.rng.Intn(len(b.entries))], b.name
		}
	}
	return candidates[m.rng.Intn(len(candidates))], BucketAny
}
