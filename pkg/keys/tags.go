package keys

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ArisenIO/vault-cli/pkg/keycodec"
)

// BioFactor describes how biometric confirmation is bound to a key.
type BioFactor int

const (
	// BioNone means no biometric gate.
	BioNone BioFactor = iota
	// BioFixed means the biometric requirement is permanently bound to the
	// key at creation and cannot be bypassed.
	BioFixed
	// BioFlex means the biometric requirement can be toggled per signing
	// operation.
	BioFlex
)

// String returns the tag token for the bio factor ("", "fixed" or "flex").
func (b BioFactor) String() string {
	switch b {
	case BioFixed:
		return "fixed"
	case BioFlex:
		return "flex"
	default:
		return ""
	}
}

// BioFromString parses a bio factor name: "none", "fixed" or "flex".
func BioFromString(s string) (BioFactor, error) {
	switch s {
	case "none", "":
		return BioNone, nil
	case "fixed":
		return BioFixed, nil
	case "flex":
		return BioFlex, nil
	default:
		return 0, fmt.Errorf("unknown bio factor %q", s)
	}
}

// Tag tokens are matched as whole words so that e.g. "myflexiblekey" does not
// classify as flex while "flex-key1" does.
var (
	tagTokenK1    = regexp.MustCompile(`\bk1\b`)
	tagTokenFixed = regexp.MustCompile(`\bfixed\b`)
	tagTokenFlex  = regexp.MustCompile(`\bflex\b`)
)

// TagSet is the structured form of the delimited storage tag string. The
// legacy string form is parsed and rendered only at this seam; the rest of
// the system works with typed values.
type TagSet struct {
	Curve keycodec.Curve
	Bio   BioFactor
}

// ParseTag classifies the curve and biometric factor encoded in a storage tag
// string. A missing curve token means R1; a missing bio token means no
// biometric binding. The fixed token takes precedence over flex.
func ParseTag(tag string) TagSet {
	ts := TagSet{Curve: keycodec.CurveR1, Bio: BioNone}
	if tagTokenK1.MatchString(tag) {
		ts.Curve = keycodec.CurveK1
	}
	switch {
	case tagTokenFixed.MatchString(tag):
		ts.Bio = BioFixed
	case tagTokenFlex.MatchString(tag):
		ts.Bio = BioFlex
	}
	return ts
}

// String renders the canonical delimited tag form, e.g. "k1 fixed". R1 with
// no biometric binding renders as the empty string.
func (ts TagSet) String() string {
	var parts []string
	if ts.Curve == keycodec.CurveK1 {
		parts = append(parts, "k1")
	}
	if token := ts.Bio.String(); token != "" {
		parts = append(parts, token)
	}
	return strings.Join(parts, " ")
}
