package contextbudget

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoopRetrieverReturnsEmpty(t *testing.T) {
	out, err := NoopRetriever{}.Retrieve(context.Background(), "t1", "anything")
	assert.NoError(t, err)
	assert.Empty(t, out)
}

func TestInMemoryAccountantAccumulatesPerTask(t *testing.T) {
	a := NewInMemoryAccountant()
	a.Record("t1", 100)
	a.Record("t1", 50)
	a.Record("t2", 10)

	assert.Equal(t, 150, a.Total("t1"))
	assert.Equal(t, 10, a.Total("t2"))
	assert.Equal(t, 0, a.Total("unknown"))

	totals := a.Totals()
	assert.Equal(t, map[string]int{"t1": 150, "t2": 10}, totals)
}
