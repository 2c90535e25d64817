package properties

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBagSetGetRemove(t *testing.T) {
	b := NewBag()

	_, ok := b.Get("plan")
	assert.False(t, ok)

	b.Set("plan", "pro")
	v, ok := b.Get("plan")
	assert.True(t, ok)
	assert.Equal(t, "pro", v)

	b.Remove("plan")
	_, ok = b.Get("plan")
	assert.False(t, ok)
}

func TestBagSnapshotIsIndependentCopy(t *testing.T) {
	b := NewBag()
	b.Set("plan", "pro")

	snap := b.Snapshot()
	snap["plan"] = "mutated"

	v, _ := b.Get("plan")
	assert.Equal(t, "pro", v)
}

func TestBagClear(t *testing.T) {
	b := NewBag()
	b.Set("plan", "pro")
	b.Clear()
	assert.Empty(t, b.Snapshot())
}

func TestBagsAreIndependent(t *testing.T) {
	bags := NewBags()
	bags.User.Set("plan", "pro")
	bags.Device.Set("os", "ios")

	_, ok := bags.Device.Get("plan")
	assert.False(t, ok)

	v, ok := bags.Device.Get("os")
	assert.True(t, ok)
	assert.Equal(t, "ios", v)
}
