package frames

import "math"

// Preview is the displayed frame triplet. Prev and Next are empty after a
// single-frame request.
type Preview struct {
	Center   *Handle  `json:"center"`
	Prev     *Handle  `json:"prev"`
	Next     *Handle  `json:"next"`
	Time     *float64 `json:"time"`
	PrevTime *float64 `json:"prev_time"`
	NextTime *float64 `json:"next_time"`
	Loading  bool     `json:"loading"`
	Error    string   `json:"error,omitempty"`
}

// IsEmpty reports whether nothing is displayed or pending.
func (p Preview) IsEmpty() bool {
	return p.Center == nil && p.Prev == nil && p.Next == nil &&
		p.Time == nil && !p.Loading && p.Error == ""
}

// Matches reports whether the displayed center time is within tolerance of t.
func (p Preview) Matches(t float64) bool {
	return p.Time != nil && math.Abs(*p.Time-t) <= 1e-3
}

func timePtr(t float64) *float64 {
	return &t
}
