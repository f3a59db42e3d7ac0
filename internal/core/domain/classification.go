package domain

// LabelUnknown is the sentinel label returned when classification fails.
const LabelUnknown = "unknown"

// Classification is the result of analyzing one utterance.
type Classification struct {
	Label      string  `json:"prediction"`
	Confidence float64 `json:"confidence"`
	Error      string  `json:"error,omitempty"`

	// Err keeps the underlying failure for errors.Is checks.
	Err error `json:"-"`
}

// UnknownClassification converts a failure into the sentinel result.
func UnknownClassification(err error) Classification {
	c := Classification{Label: LabelUnknown, Err: err}
	if err != nil {
		c.Error = err.Error()
	}
	return c
}

// OK reports whether the classification carries a usable label.
func (c Classification) OK() bool {
	return c.Err == nil && c.Label != "" && c.Label != LabelUnknown
}
