package ir

import (
	"math"
	"slices"
	"strconv"
	"unicode/utf16"
)

// IRValue is the sealed set of values canonical JSON can carry.
// Only IRString, IRInt, IRBool, IRArray and IRObject implement it.
type IRValue interface {
	irValue()
}

// IRString is a string value.
type IRString string

func (IRString) irValue() {}

// IRInt is an integer value.
type IRInt int64

func (IRInt) irValue() {}

// IRBool is a boolean value.
type IRBool bool

func (IRBool) irValue() {}

// IRArray is an ordered list of values.
type IRArray []IRValue

func (IRArray) irValue() {}

// IRObject maps keys to values. Use SortedKeys for deterministic iteration.
type IRObject map[string]IRValue

func (IRObject) irValue() {}

// Float32Bits encodes f through its IEEE 754 bits, so -0 and NaN payloads
// stay distinct.
func Float32Bits(f float32) IRInt {
	return IRInt(math.Float32bits(f))
}

// Decimal encodes f as its shortest round-tripping decimal string.
func Decimal(f float64) IRString {
	return IRString(strconv.FormatFloat(f, 'g', -1, 64))
}

// Strings encodes a string slice.
func Strings(ss []string) IRArray {
	arr := make(IRArray, len(ss))
	for i, s := range ss {
		arr[i] = IRString(s)
	}
	return arr
}

// SortedKeys returns keys ordered by UTF-16 code units, as RFC 8785 requires.
func (obj IRObject) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

// compareUTF16 orders strings by UTF-16 code units. Plain string comparison
// orders by UTF-8 bytes, which differs above U+FFFF.
func compareUTF16(a, b string) int {
	return slices.Compare(utf16.Encode([]rune(a)), utf16.Encode([]rune(b)))
}
