// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package fixedpoint provides the integer-only proportional arithmetic used
// for every entitlement and fee computation in the ledger. No floating point
// is used anywhere so that results are reproducible bit for bit.
package fixedpoint

import (
	"errors"
	"fmt"
	"math/bits"
)

// Scale is the denominator used to express fractional percentages. A value of
// Scale represents 100%.
const Scale uint64 = 1_000_000

var (
	ErrOverflow       = errors.New("arithmetic overflow")
	ErrDivisionByZero = errors.New("division by zero")
	ErrUnderflow      = errors.New("arithmetic underflow")
)

// ScaledMulDiv returns floor(a * num / den). The product is computed with a
// 128-bit intermediate, so the only overflow condition is a quotient that does
// not fit in 64 bits.
func ScaledMulDiv(a, num, den uint64) (uint64, error) {
	if den == 0 {
		return 0, ErrDivisionByZero
	}
	hi, lo := bits.Mul64(a, num)
	// bits.Div64 panics when the quotient overflows, which is exactly hi >= den
	if hi >= den {
		return 0, fmt.Errorf(
			"%w: %d * %d / %d exceeds 64 bits",
			ErrOverflow,
			a,
			num,
			den,
		)
	}
	quo, _ := bits.Div64(hi, lo, den)
	return quo, nil
}

// Percent applies a percentage expressed over Scale to amount
func Percent(amount, bp uint64) (uint64, error) {
	if bp > Scale {
		return 0, fmt.Errorf(
			"%w: percentage %d exceeds scale %d",
			ErrOverflow,
			bp,
			Scale,
		)
	}
	return ScaledMulDiv(amount, bp, Scale)
}

// Add returns a + b or ErrOverflow
func Add(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, fmt.Errorf("%w: %d + %d", ErrOverflow, a, b)
	}
	return sum, nil
}

// Sub returns a - b or ErrUnderflow. It never wraps.
func Sub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, fmt.Errorf("%w: %d - %d", ErrUnderflow, a, b)
	}
	return diff, nil
}

// Mul returns a * b or ErrOverflow
func Mul(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, fmt.Errorf("%w: %d * %d", ErrOverflow, a, b)
	}
	return lo, nil
}

// IsArithmetic reports whether err is one of the arithmetic faults defined in
// this package
func IsArithmetic(err error) bool {
	return errors.Is(err, ErrOverflow) ||
		errors.Is(err, ErrDivisionByZero) ||
		errors.Is(err, ErrUnderflow)
}
