package check

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gotest.tools/assert"
)

type pointerReceiver struct {
	A bool
}

func (p *pointerReceiver) Validate() []error {
	return []error{True(p.A, "field A must be true")}
}

type valueReceiver struct {
	A bool
}

func (v valueReceiver) Validate() []error {
	return []error{nil, True(v.A, "field A must be true")}
}

type nested struct {
	Inner   []valueReceiver
	Pointer *pointerReceiver
	hidden  valueReceiver
}

func TestConditions(t *testing.T) {
	assert.NilError(t, True(true, "x"))
	assert.NilError(t, NotEmpty("a", "x"))
	assert.NilError(t, GreaterThan(2, 1, "x"))
	assert.NilError(t, GreaterThanOrEqualTo(1, 1, "x"))
	assert.NilError(t, Equal(3, 3, "x"))
	assert.NilError(t, OneOf("dpgmm", []string{"dpgmm"}, "x"))

	assert.Error(t, True(false, ""), "expected true, got false")
	assert.Error(t, GreaterThan(1, 1, "perplexity"), "perplexity: 1 is not greater than 1")
	assert.Error(t, GreaterThanOrEqualTo(0, 1, "iterations"), "iterations: 0 is less than 1")
	assert.Error(t, NotEmpty("", "export"), "export: expected a non-empty string")
	assert.Error(t, Equal(1, 2, "names"), "names: 1 is not equal to 2")
	assert.Error(t, OneOf("kmeans", []string{"dpgmm"}, "method"), "method: kmeans not in [dpgmm]")
}

func TestMethodSets(t *testing.T) {
	const msg = "field A must be true: expected true, got false"
	p := pointerReceiver{}
	v := valueReceiver{}
	assert.ErrorContains(t, Validate(&p), msg)
	assert.ErrorContains(t, Validate(v), msg)
	assert.ErrorContains(t, Validate(&v), msg)
	assert.NilError(t, Validate(&pointerReceiver{A: true}))
}

func TestNestedPaths(t *testing.T) {
	err := Validate(nested{
		Inner:   []valueReceiver{{A: true}, {A: false}},
		Pointer: &pointerReceiver{},
	})
	require.Error(t, err)
	assert.ErrorContains(t, err, "Inner[1]: field A must be true")
	assert.ErrorContains(t, err, "Pointer: field A must be true")
	assert.ErrorContains(t, err, "2 errors occurred")

	assert.NilError(t, Validate(nested{Inner: []valueReceiver{{A: true}}}))
}
