package diff

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Stats holds word-level edit counts between two texts.
//
// Replace is min(Insert, Delete): a paired insert and delete is read as a
// substitution. Insert and Delete are not reduced by Replace, so a
// substitution is counted in all three fields. Downstream analysis depends
// on exactly this shape.
type Stats struct {
	Insert  int `json:"insert"`
	Delete  int `json:"delete"`
	Replace int `json:"replace"`
}

// IsZero reports whether the two texts had identical word sequences.
func (s Stats) IsZero() bool {
	return s.Insert == 0 && s.Delete == 0 && s.Replace == 0
}

// Compute tokenizes both texts on whitespace and counts the words that only
// appear in the edit script of one side.
func Compute(old, new string) Stats {
	a := strings.Fields(old)
	b := strings.Fields(new)

	var st Stats
	m := difflib.NewMatcher(a, b)
	for _, op := range m.GetOpCodes() {
		switch op.Tag {
		case 'd':
			st.Delete += op.I2 - op.I1
		case 'i':
			st.Insert += op.J2 - op.J1
		case 'r':
			st.Delete += op.I2 - op.I1
			st.Insert += op.J2 - op.J1
		}
	}
	st.Replace = min(st.Insert, st.Delete)
	return st
}
