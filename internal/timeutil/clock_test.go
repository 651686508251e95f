package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestRealClock(t *testing.T) {
	t.Parallel()
	var c Clock = RealClock{}
	before := time.Now()
	now := c.Now()
	assert.False(t, now.Before(before))
	assert.GreaterOrEqual(t, c.Since(before), time.Duration(0))
}

func TestMockClock(t *testing.T) {
	t.Parallel()
	c := NewMockClock(epoch)
	assert.Equal(t, epoch, c.Now())
	assert.Equal(t, epoch, c.Now(), "a stopped clock does not move on read")

	c.Advance(time.Minute)
	assert.Equal(t, epoch.Add(time.Minute), c.Now())
	assert.Equal(t, time.Minute, c.Since(epoch))

	c.Set(epoch)
	assert.Equal(t, epoch, c.Now())
}

func TestSteppingClock(t *testing.T) {
	t.Parallel()
	c := NewSteppingClock(epoch, time.Second)
	assert.Equal(t, epoch, c.Now())
	assert.Equal(t, epoch.Add(time.Second), c.Now())
	assert.Equal(t, 2*time.Second, c.Since(epoch), "Since does not step")
	assert.Equal(t, epoch.Add(2*time.Second), c.Now())
}
