package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aegis-bot/warden/automod/behavior"
	"github.com/aegis-bot/warden/automod/config"
	"github.com/aegis-bot/warden/automod/effects"
	"github.com/aegis-bot/warden/automod/filter"
	"github.com/aegis-bot/warden/automod/ledger"

	"github.com/stretchr/testify/assert"
)

func TestEngineCleanMessage(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	tf := EngineTestFixture()

	out, err := tf.Engine.ProcessMessage(ctx, NewTestMessage("m1", "hello there, how is everybody", time.Now()))
	assert.NoError(err)
	assert.Equal(StateClean, out.State)
	assert.Equal([]State{StateReceived, StateEvaluating, StateClean}, out.Trail)
	assert.Empty(tf.Sink.Methods())
	assert.Empty(tf.Ledger.Records("g1", "u1"))
}

func TestEngineSpamRate(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	tf := EngineTestFixture()

	start := time.Now()
	var out *Outcome
	var err error
	for i := range 6 {
		evt := NewTestMessage(fmt.Sprintf("m%d", i), fmt.Sprintf("message number %d", i), start.Add(time.Duration(i)*500*time.Millisecond))
		out, err = tf.Engine.ProcessMessage(ctx, evt)
		assert.NoError(err)
		if i < 5 {
			assert.Equal(StateClean, out.State)
		}
	}

	assert.Equal(StateActioned, out.State)
	assert.Equal([]State{StateReceived, StateEvaluating, StateViolating, StateRecorded, StateEscalated, StateActioned}, out.Trail)
	assert.Equal([]filter.Kind{filter.KindSpam}, out.Kinds())
	assert.Equal(behavior.DetailRate, out.Violations[0].Detail)

	deletes := tf.Sink.Calls("DeleteMessage")
	assert.Len(deletes, 1)
	assert.Equal("m5", deletes[0].MessageID)

	recs := tf.Ledger.Records("g1", "u1")
	assert.Len(recs, 1)
	assert.Equal([]config.FilterKind{config.KindSpam}, recs[0].Kinds)
	assert.Equal(ledger.ActionDelete, recs[0].ActionTaken)
}

func TestEngineDuplicates(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	tf := EngineTestFixture()

	start := time.Now()
	var out *Outcome
	for i := range 4 {
		evt := NewTestMessage(fmt.Sprintf("m%d", i), "buy my stuff", start.Add(time.Duration(i)*time.Second))
		o, err := tf.Engine.ProcessMessage(ctx, evt)
		assert.NoError(err)
		out = o
	}
	assert.Equal(StateActioned, out.State)
	assert.Equal(behavior.DetailDuplicate, out.Violations[0].Detail)
	assert.Len(tf.Ledger.Records("g1", "u1"), 1)
}

func TestEngineDisabledGroup(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	tf := EngineTestFixture()

	evt := NewTestMessage("m1", "THIS IS ALL CAPS AND DAMN LOUD", time.Now())
	evt.GroupID = "other"
	out, err := tf.Engine.ProcessMessage(ctx, evt)
	assert.NoError(err)
	assert.Equal(StateDisabled, out.State)
	assert.Empty(tf.Sink.Methods())
}

func TestEngineExemptions(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	tf := EngineTestFixture()

	cfg := config.Default()
	cfg.Enabled = true
	cfg.Exemptions.Roles = []string{"trusted"}
	cfg.Exemptions.Channels = []string{"c-free"}
	tf.Configs.Put("g1", cfg)

	loud := "STOP SHOUTING AT ME PLEASE"

	evt := NewTestMessage("m1", loud, time.Now())
	evt.AuthorRoles = []string{"member", "trusted"}
	out, err := tf.Engine.ProcessMessage(ctx, evt)
	assert.NoError(err)
	assert.Equal(StateExempt, out.State)
	assert.Equal([]string{"role:trusted"}, out.ExemptReasons)

	evt = NewTestMessage("m2", loud, time.Now())
	evt.ChannelID = "c-free"
	evt.AuthorIsModerator = true
	out, err = tf.Engine.ProcessMessage(ctx, evt)
	assert.NoError(err)
	assert.Equal(StateExempt, out.State)
	assert.Equal([]string{"moderator", "channel"}, out.ExemptReasons)

	assert.Empty(tf.Sink.Methods())
	assert.Empty(tf.Ledger.Records("g1", "u1"))

	// same content, no exemption
	out, err = tf.Engine.ProcessMessage(ctx, NewTestMessage("m3", loud, time.Now()))
	assert.NoError(err)
	assert.Equal(StateActioned, out.State)
	assert.Len(tf.Ledger.Records("g1", "u1"), 1)
}

func TestEngineMuteOncePerCrossing(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	tf := EngineTestFixture()

	cfg := config.Default()
	cfg.Enabled = true
	cfg.Escalation.Mute = config.MuteThreshold{Count: 3, WindowSeconds: 300, DurationSeconds: 600}
	cfg.Escalation.Ban.Count = 0
	tf.Configs.Put("g1", cfg)

	now := time.Now()
	for i := range 5 {
		content := "SHOUTINGLOUDLY" + string(rune('A'+i))
		out, err := tf.Engine.ProcessMessage(ctx, NewTestMessage(fmt.Sprintf("m%d", i), content, now.Add(time.Duration(i)*time.Second)))
		assert.NoError(err)
		assert.Equal(StateActioned, out.State)
	}

	mutes := tf.Sink.Calls("MuteUser")
	assert.Len(mutes, 1)
	assert.Equal(600*time.Second, mutes[0].Duration)
	assert.Len(tf.Sink.Calls("DeleteMessage"), 5)
	// warnings only below the mute threshold
	assert.Len(tf.Sink.Calls("SendChannelMessage"), 2)

	recs := tf.Ledger.Records("g1", "u1")
	assert.Len(recs, 5)
	assert.Equal(ledger.ActionDelete, recs[1].ActionTaken)
	assert.Equal(ledger.ActionTimeout, recs[2].ActionTaken)
}

func TestEngineRedeliveryIdempotent(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	tf := EngineTestFixture()

	evt := NewTestMessage("m1", "STOP SHOUTING AT ME PLEASE", time.Now())
	out1, err := tf.Engine.ProcessMessage(ctx, evt)
	assert.NoError(err)
	out2, err := tf.Engine.ProcessMessage(ctx, evt)
	assert.NoError(err)

	assert.Equal(out1.Kinds(), out2.Kinds())
	assert.Equal(out1.Report.RecordID, out2.Report.RecordID)
	assert.Equal(RecordIDFor(evt), out1.Report.RecordID)
	assert.Len(tf.Ledger.Records("g1", "u1"), 1)
}

type failingProvider struct{}

func (failingProvider) GetConfig(ctx context.Context, groupID string) (*config.GuildConfig, error) {
	return nil, errors.New("database is down")
}

func TestEngineConfigUnavailable(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	tf := EngineTestFixture()
	tf.Engine.Configs = config.NewCachedProvider(failingProvider{}, config.NewMemCache(10, time.Minute), nil)

	out, err := tf.Engine.ProcessMessage(ctx, NewTestMessage("m1", "STOP SHOUTING AT ME PLEASE", time.Now()))
	assert.NoError(err)
	assert.ErrorIs(out.ConfigErr, config.ErrConfigUnavailable)
	// defaults have moderation turned off
	assert.Equal(StateDisabled, out.State)
	assert.Empty(tf.Sink.Methods())
}

type brokenLedger struct{}

func (brokenLedger) Append(ctx context.Context, rec *ledger.ViolationRecord) (string, error) {
	return "", errors.New("disk full")
}

func (brokenLedger) CountSince(ctx context.Context, groupID, authorID string, since time.Time) (int, error) {
	return 0, errors.New("disk full")
}

func TestEngineLedgerWriteFailed(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	tf := EngineTestFixture()
	tf.Engine.Executor.Ledger = brokenLedger{}

	out, err := tf.Engine.ProcessMessage(ctx, NewTestMessage("m1", "STOP SHOUTING AT ME PLEASE", time.Now()))
	assert.ErrorIs(err, ledger.ErrLedgerWriteFailed)
	assert.Equal(StateActioned, out.State)
	assert.NotContains(out.Trail, StateRecorded)
	assert.False(out.Report.Recorded)

	// enforcement still happened
	assert.Len(tf.Sink.Calls("DeleteMessage"), 1)
	assert.Len(tf.Sink.Calls("SendChannelMessage"), 1)
}

func TestEngineFilterError(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	tf := EngineTestFixture()
	tf.Engine.Filters = filter.NewSet(map[filter.Kind]filter.Func{
		filter.KindProfanity: func(msg *filter.Message, cfg *config.GuildConfig) (filter.Verdict, error) {
			panic("word list corrupted")
		},
		filter.KindCaps: filter.CheckCaps,
	})

	out, err := tf.Engine.ProcessMessage(ctx, NewTestMessage("m1", "STOP SHOUTING AT ME PLEASE", time.Now()))
	assert.NoError(err)
	assert.Len(out.FilterErrors, 1)
	assert.ErrorIs(out.FilterErrors[0], filter.ErrFilterEvaluation)
	assert.Equal([]filter.Kind{filter.KindCaps}, out.Kinds())
	assert.Equal(StateActioned, out.State)
}

func TestEngineInvalidEvent(t *testing.T) {
	assert := assert.New(t)
	tf := EngineTestFixture()

	_, err := tf.Engine.ProcessMessage(context.Background(), &MessageEvent{ID: "m1", Content: "hi"})
	assert.Error(err)
}

func TestEngineConfigChanged(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	tf := EngineTestFixture()
	cached := config.NewCachedProvider(tf.Configs, config.NewMemCache(10, time.Hour), nil)
	tf.Engine.Configs = cached

	loud := "STOP SHOUTING AT ME PLEASE"
	out, err := tf.Engine.ProcessMessage(ctx, NewTestMessage("m1", loud, time.Now()))
	assert.NoError(err)
	assert.Equal(StateActioned, out.State)

	cfg := config.Default()
	cfg.Enabled = false
	tf.Configs.Put("g1", cfg)

	// still cached
	out, err = tf.Engine.ProcessMessage(ctx, NewTestMessage("m2", loud, time.Now()))
	assert.NoError(err)
	assert.Equal(StateActioned, out.State)

	assert.NoError(tf.Engine.OnConfigChanged(ctx, "g1"))
	out, err = tf.Engine.ProcessMessage(ctx, NewTestMessage("m3", loud, time.Now()))
	assert.NoError(err)
	assert.Equal(StateDisabled, out.State)
}

func TestEngineQueuePerAuthorOrder(t *testing.T) {
	assert := assert.New(t)
	tf := EngineTestFixture()

	var mu sync.Mutex
	seen := make(map[string][]string)
	tf.Engine.Filters = filter.NewSet(map[filter.Kind]filter.Func{
		filter.KindCaps: func(msg *filter.Message, cfg *config.GuildConfig) (filter.Verdict, error) {
			mu.Lock()
			defer mu.Unlock()
			author := strings.Fields(msg.Content)[0]
			seen[author] = append(seen[author], msg.Content)
			return filter.Verdict{}, nil
		},
	})

	authors := []string{"u1", "u2", "u3", "u4"}
	start := time.Now()
	for i := range 50 {
		for _, a := range authors {
			evt := NewTestMessage(fmt.Sprintf("%s-%d", a, i), fmt.Sprintf("%s %03d", a, i), start.Add(time.Duration(i)*time.Minute))
			evt.AuthorID = a
			assert.True(tf.Engine.OnMessage(evt))
		}
	}
	tf.Engine.Close()

	assert.False(tf.Engine.OnMessage(NewTestMessage("late", "u1 late", start)))
	assert.Equal(0, tf.Engine.queue.ActiveKeys())
	for _, a := range authors {
		got := seen[a]
		assert.Len(got, 50)
		for i, c := range got {
			assert.Equal(fmt.Sprintf("%s %03d", a, i), c)
		}
	}
}

// counts DeleteMessage calls running at the same time
type overlapSink struct {
	*effects.RecordingSink
	inflight, peak atomic.Int32
}

func (s *overlapSink) DeleteMessage(ctx context.Context, groupID, channelID, messageID string) error {
	n := s.inflight.Add(1)
	defer s.inflight.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	return s.RecordingSink.DeleteMessage(ctx, groupID, channelID, messageID)
}

func TestEngineSyncCallsSerializedPerAuthor(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	tf := EngineTestFixture()
	sink := &overlapSink{RecordingSink: tf.Sink}
	tf.Engine.Executor.Sink = sink

	start := time.Now()
	var wg sync.WaitGroup
	for i := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			evt := NewTestMessage(fmt.Sprintf("m%d", i), "SHOUTINGLOUDLY"+string(rune('A'+i)), start.Add(time.Duration(i)*5*time.Second))
			out, err := tf.Engine.ProcessMessage(ctx, evt)
			assert.NoError(err)
			assert.Equal(StateActioned, out.State)
		}()
	}
	wg.Wait()

	assert.Equal(int32(1), sink.peak.Load())
	assert.Len(tf.Sink.Calls("DeleteMessage"), 4)
	assert.Len(tf.Ledger.Records("g1", "u1"), 4)
	assert.Equal(0, tf.Engine.locks.Size())
}

func TestEngineRunSweeps(t *testing.T) {
	assert := assert.New(t)
	tf := EngineTestFixture()
	tf.Engine.SweepInterval = 10 * time.Millisecond
	tf.Engine.Tracker.IdleTTL = time.Millisecond

	old := time.Now().Add(-time.Hour)
	_, err := tf.Engine.ProcessMessage(context.Background(), NewTestMessage("m1", "hello", old))
	assert.NoError(err)
	assert.Equal(1, tf.Engine.Tracker.Size())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- tf.Engine.Run(ctx) }()
	assert.Eventually(func() bool { return tf.Engine.Tracker.Size() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(<-done)
}

var _ effects.ActionSink = (*effects.RecordingSink)(nil)
