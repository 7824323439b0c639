package client

import (
	"math/rand/v2"
	"strconv"
	"strings"
)

const (
	minOperand = 1
	maxOperand = 10
)

var operators = [...]byte{'+', '-', '*', '/'}

// Expression builds a random expression of n operands drawn uniformly from
// 1..10, joined by operators drawn uniformly from + - * /. Every divisor is
// a literal operand, so the result never involves a division by zero.
func Expression(rng *rand.Rand, n int) string {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteByte(operators[rng.IntN(len(operators))])
		}
		sb.WriteString(strconv.Itoa(minOperand + rng.IntN(maxOperand-minOperand+1)))
	}
	return sb.String()
}
