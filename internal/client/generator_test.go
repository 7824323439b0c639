package client

import (
	"math/rand/v2"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omochice/toy-socket-calc/pkg/calc"
)

func TestExpression_Shape(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 7))

	for _, n := range []int{1, 2, 5, 40} {
		expr := Expression(rng, n)

		operands := strings.FieldsFunc(expr, func(r rune) bool {
			return strings.ContainsRune("+-*/", r)
		})
		require.Len(t, operands, n, "expression %q", expr)
		for _, op := range operands {
			v, err := strconv.Atoi(op)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, v, minOperand)
			assert.LessOrEqual(t, v, maxOperand)
		}
		assert.NotContains(t, expr, " ")
	}
}

func TestExpression_AlwaysEvaluates(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 1000; i++ {
		expr := Expression(rng, 1+rng.IntN(8))
		_, err := calc.Evaluate(expr)
		require.NoError(t, err, "expression %q", expr)
	}
}

func TestExpression_Reproducible(t *testing.T) {
	a := rand.New(rand.NewPCG(42, 42))
	b := rand.New(rand.NewPCG(42, 42))
	for i := 0; i < 20; i++ {
		assert.Equal(t, Expression(a, 6), Expression(b, 6))
	}
}

func TestFragment(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	msg := []byte("1+2*3-4/5 ")

	for i := 0; i < 200; i++ {
		chunks := Fragment(rng, msg)
		require.NotEmpty(t, chunks)

		var joined []byte
		for _, c := range chunks {
			require.NotEmpty(t, c)
			joined = append(joined, c...)
		}
		assert.Equal(t, msg, joined)
	}
}

func TestFragment_Empty(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	assert.Empty(t, Fragment(rng, nil))
}

func TestFragment_SingleByte(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	assert.Equal(t, [][]byte{[]byte(" ")}, Fragment(rng, []byte(" ")))
}
