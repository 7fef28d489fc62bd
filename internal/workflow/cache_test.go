package workflow

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/docaudit/internal/model"
)

func TestContractCache_POPrecedence(t *testing.T) {
	c := newContractCache(8, time.Hour)

	c.Put(model.ContractContext{ContractID: "c-vendor", VendorName: "Acme Corp"})
	c.Put(model.ContractContext{ContractID: "c-po", PONumber: "AB1234"})

	got, ok := c.Get("AB1234", "Acme Corp")
	require.True(t, ok)
	assert.Equal(t, "c-po", got.ContractID)

	got, ok = c.Get("", "Acme Corp")
	require.True(t, ok)
	assert.Equal(t, "c-vendor", got.ContractID)

	_, ok = c.Get("ZZ9999", "Nobody")
	assert.False(t, ok)
}

func TestContractCache_TTLExpiry(t *testing.T) {
	c := newContractCache(8, time.Hour)
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }

	c.Put(model.ContractContext{ContractID: "c-1", PONumber: "AB1234"})

	_, ok := c.Get("AB1234", "")
	assert.True(t, ok)

	c.now = func() time.Time { return base.Add(2 * time.Hour) }
	_, ok = c.Get("AB1234", "")
	assert.False(t, ok)
}

func TestContractCache_BoundedCapacity(t *testing.T) {
	c := newContractCache(4, time.Hour)
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 10; i++ {
		tick := base.Add(time.Duration(i) * time.Minute)
		c.now = func() time.Time { return tick }
		c.Put(model.ContractContext{
			ContractID: fmt.Sprintf("c-%d", i),
			PONumber:   fmt.Sprintf("AB%04d", i),
		})
	}

	assert.LessOrEqual(t, c.Len(), 4)

	// The most recent entry survives.
	_, ok := c.Get("AB0009", "")
	assert.True(t, ok)
}

func TestContractCache_UpdateDoesNotEvict(t *testing.T) {
	c := newContractCache(2, time.Hour)

	c.Put(model.ContractContext{ContractID: "c-1", PONumber: "AB0001"})
	c.Put(model.ContractContext{ContractID: "c-1b", PONumber: "AB0001"})

	got, ok := c.Get("AB0001", "")
	require.True(t, ok)
	assert.Equal(t, "c-1b", got.ContractID)
	assert.Equal(t, 1, c.Len())
}
