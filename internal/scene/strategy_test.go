package scene

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStrategy(t *testing.T) {
	cases := []struct {
		name string
		want Strategy
	}{
		{"sequential", StrategySequential},
		{"global", StrategyGlobal},
		{"bruteforce", StrategyBruteforce},
	}
	for _, tc := range cases {
		got, err := ParseStrategy(tc.name)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
		assert.Equal(t, tc.name, got.String())
		assert.Equal(t, "ba_"+tc.name, got.Dir())
	}

	_, err := ParseStrategy("annealing")
	assert.ErrorContains(t, err, "unknown strategy")
}

func TestClosestDates(t *testing.T) {
	// target 4: distances for [0 1 5 7] are [4 3 1 3]; ties go to the
	// earlier date, results stay chronological
	assert.Equal(t, []int{5}, closestDates([]int{0, 1, 5, 7}, 4, 1))
	assert.Equal(t, []int{1, 5}, closestDates([]int{0, 1, 5, 7}, 4, 2))
	assert.Equal(t, []int{1, 5, 7}, closestDates([]int{0, 1, 5, 7}, 4, 3))
	assert.Equal(t, []int{0, 1, 5, 7}, closestDates([]int{0, 1, 5, 7}, 4, 10))
	assert.Nil(t, closestDates(nil, 4, 2))
	assert.Nil(t, closestDates([]int{1}, 4, 0))
}

func TestInputValidateRejectsDuplicates(t *testing.T) {
	in := &Input{
		Anchors: []Image{{ID: "a"}, {ID: "b"}},
		New:     []Image{{ID: "c"}},
	}
	require.NoError(t, in.Validate())
	assert.Equal(t, []Image{{ID: "a"}, {ID: "b"}, {ID: "c"}}, in.Images())

	in.New = append(in.New, Image{ID: "a"})
	assert.ErrorContains(t, in.Validate(), "duplicate image")
}

func TestFormatElapsed(t *testing.T) {
	assert.Equal(t, "0:00:01.50", formatElapsed(1500*time.Millisecond))
	assert.Equal(t, "0:02:03.00", formatElapsed(123*time.Second))
	assert.Equal(t, "1:01:01.25", formatElapsed(3661*time.Second+250*time.Millisecond))
}
