// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package parameter

import (
	"bytes"
	"reflect"

	"github.com/Thermoquad/pusgate/pkg/pus"
)

// Equal compares two parameter values. Integers compare by numeric value
// regardless of width or signedness, and integers compare equal to reals
// holding the same number.
func Equal(a, b any) bool {
	if an, aok := number(a); aok {
		bn, bok := number(b)
		if !bok {
			return false
		}
		return an.equal(bn)
	}

	switch av := a.(type) {
	case []byte:
		bv, ok := b.([]byte)
		return ok && bytes.Equal(av, bv)
	case *pus.CucTime:
		bv, ok := b.(*pus.CucTime)
		if !ok || av == nil || bv == nil {
			return ok && av == bv
		}
		return av.Equal(bv)
	case *pus.Packet:
		bv, ok := b.(*pus.Packet)
		if !ok || av == nil || bv == nil {
			return ok && av == bv
		}
		ab, aerr := av.Serialize()
		bb, berr := bv.Serialize()
		return aerr == nil && berr == nil && bytes.Equal(ab, bb)
	}
	return reflect.DeepEqual(a, b)
}

type numeric struct {
	isFloat  bool
	negative bool
	mag      uint64
	f        float64
}

func number(v any) (numeric, bool) {
	switch f := v.(type) {
	case float32:
		return numeric{isFloat: true, f: float64(f)}, true
	case float64:
		return numeric{isFloat: true, f: f}, true
	}
	negative, mag, ok := splitInteger(v)
	return numeric{negative: negative, mag: mag}, ok
}

func (n numeric) float() float64 {
	if n.isFloat {
		return n.f
	}
	if n.negative {
		return -float64(n.mag)
	}
	return float64(n.mag)
}

func (n numeric) equal(o numeric) bool {
	if n.isFloat || o.isFloat {
		return n.float() == o.float()
	}
	return n.negative == o.negative && n.mag == o.mag
}
