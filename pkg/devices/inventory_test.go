package devices

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticInventory(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	inv := NewStaticInventory()
	inv.now = func() time.Time { return fixed }

	devices := inv.List()
	require.Len(t, devices, 5)
	assert.Equal(t, 5, inv.Count())

	assert.Equal(t, "Router", devices[0].Name)
	assert.Equal(t, "2024-03-01T12:00:00Z", devices[0].LastSeen)

	speaker := devices[4]
	assert.Equal(t, "Smart Speaker", speaker.Name)
	assert.Equal(t, "offline", speaker.Status)
	assert.Equal(t, "2024-03-01T11:00:00Z", speaker.LastSeen)
}

func TestStaticInventory_ListIsACopy(t *testing.T) {
	inv := NewStaticInventory()
	devices := inv.List()
	devices[0].Name = "changed"
	assert.Equal(t, "Router", inv.List()[0].Name)
}
