package source

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sarajaksa/granary/server/as1"
)

func tenItems() []as1.Activity {
	items := make([]as1.Activity, 10)
	for i := range items {
		items[i] = as1.Activity{Verb: as1.VerbPost, ID: fmt.Sprintf("a%d", i)}
	}
	return items
}

func TestPaginate(t *testing.T) {
	env := Paginate(tenItems(), 5, 3)
	assert.Equal(t, 3, env.ItemsPerPage)
	assert.Equal(t, 5, env.StartIndex)
	assert.Equal(t, 10, env.TotalResults)
	assert.Len(t, env.Items, 3)
	assert.Equal(t, "a5", env.Items[0].ID)
	assert.Equal(t, "a6", env.Items[1].ID)
	assert.Equal(t, "a7", env.Items[2].ID)
}

func TestPaginate_CountOmitted(t *testing.T) {
	env := Paginate(tenItems(), 7, 0)
	assert.Equal(t, 3, env.ItemsPerPage)
	assert.Equal(t, "a7", env.Items[0].ID)
	assert.Equal(t, "a9", env.Items[2].ID)
}

func TestPaginate_Clamped(t *testing.T) {
	env := Paginate(tenItems(), 8, 5)
	assert.Len(t, env.Items, 2)
	assert.Equal(t, 10, env.TotalResults)

	env = Paginate(tenItems(), 50, 5)
	assert.Empty(t, env.Items)
	assert.Equal(t, 0, env.ItemsPerPage)
	assert.Equal(t, 10, env.TotalResults)

	env = Paginate(nil, 0, 5)
	assert.NotNil(t, env.Items)
	assert.Empty(t, env.Items)
}

func TestPaginate_NeverExceedsCount(t *testing.T) {
	for start := 0; start < 12; start++ {
		for count := 0; count < 12; count++ {
			env := Paginate(tenItems(), start, count)
			if count > 0 {
				assert.LessOrEqual(t, len(env.Items), count)
			}
			assert.Equal(t, len(env.Items), env.ItemsPerPage)
		}
	}
}
