package sim

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUniformMatrices(t *testing.T) {
	ms := UniformMatrices(4, 2)

	assert.Len(t, ms, 4)
	for _, m := range ms {
		assert.Len(t, m, 2)
		for _, row := range m {
			assert.Equal(t, []float64{0.25, 0.25, 0.25, 0.25}, row)
		}
	}
	assert.NoError(t, ValidateMatrices(ms, 4, 2))
}

func TestCloneMatrices_IsDeep(t *testing.T) {
	ms := UniformMatrices(2, 2)

	c := CloneMatrices(ms)
	c[0][0][0] = 9

	assert.Equal(t, 0.5, ms[0][0][0])
	assert.Nil(t, CloneMatrices(nil))
}

func TestValidateMatrices_RejectsInfinity(t *testing.T) {
	ms := UniformMatrices(2, 1)
	ms[1][0][0] = math.Inf(1)

	assert.ErrorIs(t, ValidateMatrices(ms, 2, 1), ErrShapeMismatch)
}
