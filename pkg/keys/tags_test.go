package keys

import (
	"testing"

	"github.com/ArisenIO/vault-cli/pkg/keycodec"
)

func TestParseTag(t *testing.T) {
	tests := []struct {
		name      string
		tag       string
		wantCurve keycodec.Curve
		wantBio   BioFactor
	}{
		{
			name:      "empty defaults to r1 none",
			tag:       "",
			wantCurve: keycodec.CurveR1,
			wantBio:   BioNone,
		},
		{
			name:      "k1 fixed",
			tag:       "k1 fixed",
			wantCurve: keycodec.CurveK1,
			wantBio:   BioFixed,
		},
		{
			name:      "flex only",
			tag:       "flex",
			wantCurve: keycodec.CurveR1,
			wantBio:   BioFlex,
		},
		{
			name:      "flex with punctuation boundary",
			tag:       "flex-key1",
			wantCurve: keycodec.CurveR1,
			wantBio:   BioFlex,
		},
		{
			name:      "no substring match for flex",
			tag:       "myflexiblekey",
			wantCurve: keycodec.CurveR1,
			wantBio:   BioNone,
		},
		{
			name:      "no substring match for k1",
			tag:       "back1",
			wantCurve: keycodec.CurveR1,
			wantBio:   BioNone,
		},
		{
			name:      "fixed wins over flex",
			tag:       "flex fixed",
			wantCurve: keycodec.CurveR1,
			wantBio:   BioFixed,
		},
		{
			name:      "unrelated tokens ignored",
			tag:       "wallet k1 backup",
			wantCurve: keycodec.CurveK1,
			wantBio:   BioNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := ParseTag(tt.tag)
			if ts.Curve != tt.wantCurve {
				t.Errorf("ParseTag(%q).Curve = %v, want %v", tt.tag, ts.Curve, tt.wantCurve)
			}
			if ts.Bio != tt.wantBio {
				t.Errorf("ParseTag(%q).Bio = %v, want %v", tt.tag, ts.Bio, tt.wantBio)
			}
		})
	}
}

func TestTagSetString(t *testing.T) {
	tests := []struct {
		ts   TagSet
		want string
	}{
		{TagSet{Curve: keycodec.CurveR1, Bio: BioNone}, ""},
		{TagSet{Curve: keycodec.CurveK1, Bio: BioNone}, "k1"},
		{TagSet{Curve: keycodec.CurveK1, Bio: BioFixed}, "k1 fixed"},
		{TagSet{Curve: keycodec.CurveR1, Bio: BioFlex}, "flex"},
	}

	for _, tt := range tests {
		got := tt.ts.String()
		if got != tt.want {
			t.Errorf("TagSet%+v.String() = %q, want %q", tt.ts, got, tt.want)
		}

		// The canonical form must classify back to itself.
		back := ParseTag(got)
		if back != tt.ts {
			t.Errorf("ParseTag(%q) = %+v, want %+v", got, back, tt.ts)
		}
	}
}

func TestBioFromString(t *testing.T) {
	tests := []struct {
		input   string
		want    BioFactor
		wantErr bool
	}{
		{input: "none", want: BioNone},
		{input: "", want: BioNone},
		{input: "fixed", want: BioFixed},
		{input: "flex", want: BioFlex},
		{input: "touch", wantErr: true},
	}

	for _, tt := range tests {
		got, err := BioFromString(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("BioFromString(%q) expected error", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("BioFromString(%q) error = %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("BioFromString(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
