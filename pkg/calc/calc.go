// Package calc evaluates the integer arithmetic expressions carried by the
// calculator protocol.
//
// An expression is a sequence of unsigned decimal operands joined by the
// binary operators + - * /, with optional whitespace between tokens. There
// are no parentheses and no unary sign. * and / bind tighter than + and -,
// operators of equal precedence associate left to right, and division
// truncates toward zero.
package calc

import (
	"errors"
	"fmt"
	"math"
)

// Evaluator turns the text of one request frame into a result.
// Evaluate is the canonical implementation; the server and the load
// generator accept any Evaluator so both sides can be run with the same
// semantics.
type Evaluator func(expr string) (int64, error)

var (
	// ErrDivisionByZero is returned when any divisor evaluates to zero.
	ErrDivisionByZero = errors.New("division by zero")

	// ErrEmptyExpression is returned when the expression holds no operand.
	ErrEmptyExpression = errors.New("empty expression")

	// ErrUnknownOperator is returned for a byte that is neither a digit,
	// whitespace, nor one of + - * /.
	ErrUnknownOperator = errors.New("unknown operator")

	// ErrParse is returned for malformed token placement, e.g. "1++2" or
	// "3*", and for operands that do not fit in an int64.
	ErrParse = errors.New("parse error")
)

// SyntaxError locates an evaluation failure inside the expression.
type SyntaxError struct {
	Pos  int
	Char byte
	Err  error
}

func (e *SyntaxError) Error() string {
	if e.Char == 0 {
		return fmt.Sprintf("%v at offset %d", e.Err, e.Pos)
	}
	return fmt.Sprintf("%v %q at offset %d", e.Err, e.Char, e.Pos)
}

func (e *SyntaxError) Unwrap() error {
	return e.Err
}

// Evaluate computes expr with the two-stack precedence algorithm. The
// operand and operator stacks live only for the duration of the call.
func Evaluate(expr string) (int64, error) {
	var (
		values        []int64
		ops           []byte
		expectOperand = true
	)

	// reduce pops one operator and its two operands and pushes the result.
	reduce := func() error {
		top := len(values) - 1
		a, b := values[top-1], values[top]
		op := ops[len(ops)-1]
		ops = ops[:len(ops)-1]
		r, err := apply(a, b, op)
		if err != nil {
			return err
		}
		values = append(values[:top-1], r)
		return nil
	}

	for i := 0; i < len(expr); {
		c := expr[i]
		switch {
		case isSpace(c):
			i++

		case isDigit(c):
			if !expectOperand {
				return 0, &SyntaxError{Pos: i, Char: c, Err: ErrParse}
			}
			start := i
			var v int64
			for i < len(expr) && isDigit(expr[i]) {
				d := int64(expr[i] - '0')
				if v > (math.MaxInt64-d)/10 {
					return 0, &SyntaxError{Pos: start, Err: ErrParse}
				}
				v = v*10 + d
				i++
			}
			values = append(values, v)
			expectOperand = false

		case isOperator(c):
			if expectOperand {
				return 0, &SyntaxError{Pos: i, Char: c, Err: ErrParse}
			}
			for len(ops) > 0 && precedence(ops[len(ops)-1]) >= precedence(c) {
				if err := reduce(); err != nil {
					return 0, err
				}
			}
			ops = append(ops, c)
			expectOperand = true
			i++

		default:
			return 0, &SyntaxError{Pos: i, Char: c, Err: ErrUnknownOperator}
		}
	}

	if len(values) == 0 {
		return 0, ErrEmptyExpression
	}
	if expectOperand {
		return 0, &SyntaxError{Pos: len(expr), Err: ErrParse}
	}
	for len(ops) > 0 {
		if err := reduce(); err != nil {
			return 0, err
		}
	}
	return values[0], nil
}

func apply(a, b int64, op byte) (int64, error) {
	switch op {
	case '+':
		return a + b, nil
	case '-':
		return a - b, nil
	case '*':
		return a * b, nil
	case '/':
		if b == 0 {
			return 0, ErrDivisionByZero
		}
		return a / b, nil
	}
	return 0, ErrUnknownOperator
}

func precedence(op byte) int {
	switch op {
	case '+', '-':
		return 1
	case '*', '/':
		return 2
	}
	return 0
}

func isOperator(c byte) bool {
	return c == '+' || c == '-' || c == '*' || c == '/'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}
