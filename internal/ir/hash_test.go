package ir

import (
	"encoding/hex"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/spaghetti/internal/data"
)

func sampleSpec() *GraphSpec {
	return &GraphSpec{
		Name: "demo",
		Processors: []ProcessorSpec{
			{
				Name:    "A",
				Kind:    "builtin",
				Builtin: "constant",
				Outputs: []OutputSpec{{
					Name:      "out",
					Signature: SignatureSpec{Type: "value", Encoding: "float", Coords: 1, Length: 1},
					Value:     []float64{0.5},
				}},
			},
			{
				Name:    "B",
				Kind:    "builtin",
				Builtin: "passthrough",
				Inputs: []InputSpec{{
					Name:      "in",
					Signature: SignatureSpec{Type: "value", Coords: 1, Length: 1},
					NoDefault: true,
				}},
				Outputs: []OutputSpec{{Name: "out", Signature: SignatureSpec{Type: "value", Coords: 1, Length: 1}}},
			},
		},
		Links: []LinkSpec{{From: "A.out", To: "B.in"}},
	}
}

func TestSpecHashDeterminism(t *testing.T) {
	a := MustSpecHash(sampleSpec())
	b := MustSpecHash(sampleSpec())
	assert.Equal(t, a, b)

	raw, err := hex.DecodeString(a)
	require.NoError(t, err)
	assert.Len(t, raw, 32)
}

func TestSpecHashChangesWithContent(t *testing.T) {
	base := MustSpecHash(sampleSpec())

	relinked := sampleSpec()
	relinked.Links = nil
	assert.NotEqual(t, base, MustSpecHash(relinked))

	revalued := sampleSpec()
	revalued.Processors[0].Outputs[0].Value = []float64{0.25}
	assert.NotEqual(t, base, MustSpecHash(revalued))

	scripted := sampleSpec()
	scripted.Processors[1].Expressions = map[string]string{"out": "in[0][0] * 2"}
	assert.NotEqual(t, base, MustSpecHash(scripted))
}

func TestSpecHashIgnoresExpressionMapOrder(t *testing.T) {
	a := sampleSpec()
	a.Processors[1].Expressions = map[string]string{"x": "1", "y": "2"}
	b := sampleSpec()
	b.Processors[1].Expressions = map[string]string{"y": "2", "x": "1"}
	assert.Equal(t, MustSpecHash(a), MustSpecHash(b))
}

func TestDataDigest(t *testing.T) {
	a, err := data.Make(data.Float(2))
	require.NoError(t, err)
	b := a.Clone()

	da, err := DataDigest(a)
	require.NoError(t, err)
	db, err := DataDigest(b)
	require.NoError(t, err)
	assert.Equal(t, da, db)

	// Names are labels, not content.
	b.Name = "other"
	db, _ = DataDigest(b)
	assert.Equal(t, da, db)

	b.Payload.(data.Floats)[0][1] = float32(math.Copysign(0, -1))
	db, _ = DataDigest(b)
	assert.NotEqual(t, da, db, "negative zero differs bitwise")

	ints, err := a.ConvertTo(data.Value(data.SignedInt, 2, 1))
	require.NoError(t, err)
	di, _ := DataDigest(ints)
	assert.NotEqual(t, da, di, "same numbers under another signature")

	_, err = DataDigest(nil)
	assert.Error(t, err)
}

func TestDataDigestTextAndCurves(t *testing.T) {
	text, err := data.Make(data.Text(2))
	require.NoError(t, err)
	text.Payload = data.Texts{"a", "b"}
	d1, err := DataDigest(text)
	require.NoError(t, err)
	text.Payload = data.Texts{"b", "a"}
	d2, _ := DataDigest(text)
	assert.NotEqual(t, d1, d2)

	curve, err := data.Make(data.Curve(1, 1))
	require.NoError(t, err)
	_, err = DataDigest(curve)
	assert.NoError(t, err)
}

func TestDomainSeparation(t *testing.T) {
	payload := []byte(`{}`)
	assert.NotEqual(t, hashWithDomain(DomainSpec, payload), hashWithDomain(DomainData, payload))
	assert.Equal(t, "spaghetti/spec/v1", DomainSpec)
	assert.Equal(t, "spaghetti/data/v1", DomainData)
}
