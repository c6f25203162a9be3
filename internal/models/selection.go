package models

// Selector discriminates which source is authoritative for a field:
// one of the two fixed algorithm identities, or a manual override.
type Selector string

const (
	SelectorPrimary   Selector = "primary"
	SelectorSecondary Selector = "secondary"
	SelectorManual    Selector = "manual"
)

// Valid reports whether s is one of the three known discriminators.
func (s Selector) Valid() bool {
	switch s {
	case SelectorPrimary, SelectorSecondary, SelectorManual:
		return true
	}
	return false
}

// SelectTempo deterministically picks the current tempo for the record and
// reports the discriminator used.
//
// Priority: explicit manual selection, then explicit algorithm selection,
// then confidence comparison with primary winning ties. A record with no
// tempo from any source returns (nil, "").
func (a *TrackAnalysis) SelectTempo() (*float64, Selector) {
	if sel := a.TempoSelected; sel != nil {
		switch *sel {
		case SelectorManual:
			if a.TempoManual != nil {
				return a.TempoManual, SelectorManual
			}
		case SelectorPrimary:
			if a.Primary.Tempo != nil {
				return a.Primary.Tempo, SelectorPrimary
			}
		case SelectorSecondary:
			if a.Secondary.Tempo != nil {
				return a.Secondary.Tempo, SelectorSecondary
			}
		}
		// An explicit selection pointing at an absent value falls back to
		// the confidence comparison below.
	} else if a.TempoManual != nil {
		// A stored manual value with no explicit discriminator still wins.
		return a.TempoManual, SelectorManual
	}

	return pickByConfidence(
		a.Primary.Tempo, a.Primary.TempoConfidence,
		a.Secondary.Tempo, a.Secondary.TempoConfidence,
	)
}

// SelectKey deterministically picks the current key and scale for the record
// and reports the discriminator used. The rule is identical to tempo
// selection but evaluated independently: a record's selected key algorithm
// may differ from its selected tempo algorithm.
func (a *TrackAnalysis) SelectKey() (key *string, scale *string, source Selector) {
	if sel := a.KeySelected; sel != nil {
		switch *sel {
		case SelectorManual:
			if a.KeyManual != nil {
				return a.KeyManual, a.ScaleManual, SelectorManual
			}
		case SelectorPrimary:
			if a.Primary.Key != nil {
				return a.Primary.Key, a.Primary.Scale, SelectorPrimary
			}
		case SelectorSecondary:
			if a.Secondary.Key != nil {
				return a.Secondary.Key, a.Secondary.Scale, SelectorSecondary
			}
		}
	} else if a.KeyManual != nil {
		return a.KeyManual, a.ScaleManual, SelectorManual
	}

	switch {
	case a.Primary.Key == nil && a.Secondary.Key == nil:
		return nil, nil, ""
	case a.Primary.Key == nil:
		return a.Secondary.Key, a.Secondary.Scale, SelectorSecondary
	case a.Secondary.Key == nil:
		return a.Primary.Key, a.Primary.Scale, SelectorPrimary
	}

	if confOrZero(a.Secondary.KeyConfidence) > confOrZero(a.Primary.KeyConfidence) {
		return a.Secondary.Key, a.Secondary.Scale, SelectorSecondary
	}
	return a.Primary.Key, a.Primary.Scale, SelectorPrimary
}

// pickByConfidence chooses between the primary and secondary values by
// confidence. Primary wins ties and is the sole answer when the secondary is
// absent; a missing confidence counts as zero.
func pickByConfidence(primary, primaryConf, secondary, secondaryConf *float64) (*float64, Selector) {
	switch {
	case primary == nil && secondary == nil:
		return nil, ""
	case primary == nil:
		return secondary, SelectorSecondary
	case secondary == nil:
		return primary, SelectorPrimary
	}

	if confOrZero(secondaryConf) > confOrZero(primaryConf) {
		return secondary, SelectorSecondary
	}
	return primary, SelectorPrimary
}

func confOrZero(c *float64) float64 {
	if c == nil {
		return 0
	}
	return *c
}
