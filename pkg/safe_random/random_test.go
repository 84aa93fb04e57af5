package safe_random

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestGenerateRandomBytes(t *testing.T) {
	a, err := GenerateRandomBytes(32)
	require.NoError(t, err)
	b, err := GenerateRandomBytes(32)
	require.NoError(t, err)

	assert.Len(t, a, 32)
	assert.False(t, bytes.Equal(a, b))
	assert.NotEqual(t, make([]byte, 32), a)
}

func TestIntn(t *testing.T) {
	for i := 0; i < 100; i++ {
		v, err := Intn(7)
		require.NoError(t, err)
		assert.True(t, v >= 0 && v < 7)
	}
	_, err := Intn(0)
	assert.Error(t, err)
}

func TestSampleBounds(t *testing.T) {
	_, err := Sample(3, 4)
	assert.Error(t, err)
	_, err = Sample(3, -1)
	assert.Error(t, err)

	all, err := Sample(5, 5)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, all)
}

// 结果不重复、升序、落在 [0, n) 内
func TestSampleProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 48).Draw(t, "n")
		k := rapid.IntRange(0, n).Draw(t, "k")

		got, err := Sample(n, k)
		if err != nil {
			t.Fatalf("sample: %v", err)
		}
		if len(got) != k {
			t.Fatalf("len %d, want %d", len(got), k)
		}
		for i, v := range got {
			if v < 0 || v >= n {
				t.Fatalf("out of range: %d", v)
			}
			if i > 0 && got[i-1] >= v {
				t.Fatalf("not strictly ascending: %v", got)
			}
		}
	})
}
