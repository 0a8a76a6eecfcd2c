package behavior

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aegis-bot/warden/automod/config"

	"github.com/stretchr/testify/assert"
)

var testSpam = config.SpamConfig{Enabled: true, MaxMessages: 5, TimeWindowSeconds: 10, MaxDuplicates: 3}

func TestRateTriggersOnMaxPlusOne(t *testing.T) {
	assert := assert.New(t)

	tr := NewTracker(0, nil)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < testSpam.MaxMessages; i++ {
		obs := tr.Observe("g1", "a1", fmt.Sprintf("msg %d", i), start.Add(time.Duration(i)*500*time.Millisecond), 10*time.Second)
		assert.Equal(i+1, obs.Count)
		assert.Equal("", Check(obs, testSpam))
	}
	obs := tr.Observe("g1", "a1", "msg last", start.Add(3*time.Second), 10*time.Second)
	assert.Equal(6, obs.Count)
	assert.Equal(DetailRate, Check(obs, testSpam))
}

func TestDuplicatesTriggerOnMaxPlusOne(t *testing.T) {
	assert := assert.New(t)

	tr := NewTracker(0, nil)
	cfg := testSpam
	cfg.MaxMessages = 100
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < cfg.MaxDuplicates; i++ {
		obs := tr.Observe("g1", "a1", "buy now", start.Add(time.Duration(i)*time.Second), 10*time.Second)
		assert.Equal("", Check(obs, cfg))
	}
	obs := tr.Observe("g1", "a1", "buy now", start.Add(4*time.Second), 10*time.Second)
	assert.Equal(4, obs.Duplicates)
	assert.Equal(DetailDuplicate, Check(obs, cfg))

	// distinct content is never a duplicate
	obs = tr.Observe("g1", "a1", "something else", start.Add(5*time.Second), 10*time.Second)
	assert.Equal(1, obs.Duplicates)
	assert.Equal("", Check(obs, cfg))
}

func TestWindowPruning(t *testing.T) {
	assert := assert.New(t)

	tr := NewTracker(0, nil)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tr.Observe("g1", "a1", "one", start, 10*time.Second)
	tr.Observe("g1", "a1", "two", start.Add(5*time.Second), 10*time.Second)

	// an entry exactly one window old is dropped
	obs := tr.Observe("g1", "a1", "three", start.Add(10*time.Second), 10*time.Second)
	assert.Equal(2, obs.Count)

	obs = tr.Observe("g1", "a1", "four", start.Add(30*time.Second), 10*time.Second)
	assert.Equal(1, obs.Count)
}

func TestKeysAreIndependent(t *testing.T) {
	assert := assert.New(t)

	tr := NewTracker(0, nil)
	now := time.Now()
	tr.Observe("g1", "a1", "hi", now, 10*time.Second)
	tr.Observe("g1", "a1", "hi", now, 10*time.Second)
	assert.Equal(1, tr.Observe("g2", "a1", "hi", now, 10*time.Second).Count)
	assert.Equal(1, tr.Observe("g1", "a2", "hi", now, 10*time.Second).Count)
	assert.Equal(3, tr.Size())
}

func TestMarkViolation(t *testing.T) {
	assert := assert.New(t)

	tr := NewTracker(0, nil)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tr.MarkViolation("g1", "a1", now)
	obs := tr.Observe("g1", "a1", "hi", now.Add(time.Second), 10*time.Second)
	assert.Equal(now, obs.LastViolationAt)
}

func TestSweep(t *testing.T) {
	assert := assert.New(t)

	tr := NewTracker(time.Minute, nil)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tr.Observe("g1", "a1", "hi", start, 10*time.Second)
	tr.Observe("g1", "a2", "hi", start.Add(50*time.Second), 10*time.Second)

	assert.Equal(0, tr.Sweep(start.Add(30*time.Second)))
	assert.Equal(1, tr.Sweep(start.Add(61*time.Second)))
	assert.Equal(1, tr.Size())

	// evicted authors start over
	obs := tr.Observe("g1", "a1", "hi", start.Add(62*time.Second), time.Hour)
	assert.Equal(1, obs.Count)
	assert.True(obs.LastViolationAt.IsZero())
}

func TestConcurrentObserve(t *testing.T) {
	assert := assert.New(t)

	tr := NewTracker(time.Millisecond, nil)
	now := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tr.Observe("g1", "a1", fmt.Sprintf("m%d", i), now, time.Hour)
			tr.Observe("g1", fmt.Sprintf("other-%d", i), "x", now, time.Hour)
		}(i)
	}
	wg.Wait()
	obs := tr.Observe("g1", "a1", "final", now, time.Hour)
	assert.Equal(51, obs.Count)

	// sweeping concurrently with observers must not lose the live author's state
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			tr.Sweep(now.Add(-time.Hour))
		}
	}()
	for i := 0; i < 100; i++ {
		tr.Observe("g1", "a1", "again", now, time.Hour)
	}
	<-done
	assert.Equal(152, tr.Observe("g1", "a1", "last", now, time.Hour).Count)
}
