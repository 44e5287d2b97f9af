package strtab

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInternDedups(t *testing.T) {
	tab := New()
	a := tab.Intern("length")
	b := tab.Intern("length")
	assert.Same(t, a, b)
}

func TestRetainReleaseEvicts(t *testing.T) {
	tab := New()
	s := tab.Intern("scratch")
	tab.Retain(s)
	require.Equal(t, int32(1), s.Refs())

	tab.Release(s)
	assert.Equal(t, int32(0), s.Refs())

	again := tab.Intern("scratch")
	assert.NotSame(t, s, again, "evicted descriptor should not be reused")
}

func TestPinnedStringSurvivesZeroRefs(t *testing.T) {
	tab := New()
	magic := tab.Pin("undefined")
	tab.Release(magic)
	tab.Release(magic)
	still := tab.Intern("undefined")
	assert.Same(t, magic, still)
}

func TestNumberToStringCanonicalForms(t *testing.T) {
	cases := map[float64]string{
		0:                 "0",
		1:                 "1",
		-1.5:               "-1.5",
		math.NaN():        "NaN",
		math.Inf(1):       "Infinity",
		math.Inf(-1):      "-Infinity",
		1e21:              "1e+21",
		1e-7:              "1e-7",
	}
	for in, want := range cases {
		assert.Equal(t, want, NumberToString(in), "NumberToString(%v)", in)
	}
	assert.Equal(t, "0", NumberToString(math.Copysign(0, -1)), "-0 stringifies as \"0\"")
}

func TestStringToNumberRoundTrip(t *testing.T) {
	for _, s := range []string{"0", "1", "-1.5"} {
		got := NumberToString(StringToNumber(s))
		assert.Equal(t, s, got)
	}
}

func TestStringToNumberBoundaries(t *testing.T) {
	assert.True(t, math.IsNaN(StringToNumber("not a number")))
	assert.Equal(t, float64(0), StringToNumber(""))
	assert.Equal(t, float64(0), StringToNumber("   "))
	assert.Equal(t, float64(255), StringToNumber("0xff"))
}
