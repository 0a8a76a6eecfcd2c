package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aegis-bot/warden/automod/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func testLedgerStore(t *testing.T, store Store) {
	assert := assert.New(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	rec := func(at time.Time) *ViolationRecord {
		return &ViolationRecord{
			GroupID:         "g1",
			AuthorID:        "a1",
			ChannelID:       "c1",
			MessageID:       "m1",
			Kinds:           []config.FilterKind{config.KindSpam, config.KindCaps},
			Metadata:        map[string]string{"spam": "rate"},
			ContentSnapshot: "HELLO",
			ActionTaken:     ActionDelete,
			CreatedAt:       at,
		}
	}

	n, err := store.CountSince(ctx, "g1", "a1", now.Add(-time.Hour))
	assert.NoError(err)
	assert.Equal(0, n)

	first := rec(now.Add(-10 * time.Minute))
	id, err := store.Append(ctx, first)
	assert.NoError(err)
	assert.NotEmpty(id)
	assert.Equal(id, first.ID)

	// two records in the same millisecond both count
	_, err = store.Append(ctx, rec(now))
	assert.NoError(err)
	_, err = store.Append(ctx, rec(now))
	assert.NoError(err)

	// re-appending a known record is a no-op
	again := *first
	id2, err := store.Append(ctx, &again)
	assert.NoError(err)
	assert.Equal(id, id2)

	n, err = store.CountSince(ctx, "g1", "a1", now.Add(-time.Hour))
	assert.NoError(err)
	assert.Equal(3, n)

	// lower bound is inclusive
	n, err = store.CountSince(ctx, "g1", "a1", now)
	assert.NoError(err)
	assert.Equal(2, n)

	n, err = store.CountSince(ctx, "g1", "a1", now.Add(time.Second))
	assert.NoError(err)
	assert.Equal(0, n)

	n, err = store.CountSince(ctx, "g2", "a1", now.Add(-time.Hour))
	assert.NoError(err)
	assert.Equal(0, n)

	_, err = store.Append(ctx, &ViolationRecord{GroupID: "g1"})
	assert.Error(err)
}

func TestMemStore(t *testing.T) {
	assert := assert.New(t)

	ms := NewMemStore()
	testLedgerStore(t, ms)

	recs, err := ms.Recent(context.Background(), "g1", "a1", 2)
	assert.NoError(err)
	assert.Len(recs, 2)
	assert.True(!recs[0].CreatedAt.Before(recs[1].CreatedAt))
	assert.Equal(config.KindSpam, recs[0].PrimaryKind())
}

func TestGormStore(t *testing.T) {
	assert := assert.New(t)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatal(err)
	}
	gs, err := NewGormStore(db)
	if err != nil {
		t.Fatal(err)
	}
	testLedgerStore(t, gs)

	recs, err := gs.Recent(context.Background(), "g1", "a1", 10)
	assert.NoError(err)
	assert.Len(recs, 3)
	assert.Equal([]config.FilterKind{config.KindSpam, config.KindCaps}, recs[0].Kinds)
	assert.Equal("rate", recs[0].Metadata["spam"])
	assert.Equal(ActionDelete, recs[0].ActionTaken)
}

func TestRedisStore(t *testing.T) {
	assert := assert.New(t)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	// retention can not be shorter than the longest escalation window
	assert.Equal(config.MaxEscalationWindow, NewRedisStore(rdb, time.Hour).Retention)

	rs := NewRedisStore(rdb, 0)
	testLedgerStore(t, rs)

	ctx := context.Background()
	recs, err := rs.Recent(ctx, "g1", "a1", 10)
	assert.NoError(err)
	if assert.Len(recs, 3) {
		assert.True(!recs[0].CreatedAt.Before(recs[1].CreatedAt))
		assert.True(!recs[1].CreatedAt.Before(recs[2].CreatedAt))
		assert.Equal([]config.FilterKind{config.KindSpam, config.KindCaps}, recs[0].Kinds)
		assert.Equal("rate", recs[0].Metadata["spam"])
		assert.Equal(ActionDelete, recs[0].ActionTaken)
	}
	recs, err = rs.Recent(ctx, "g1", "a1", 1)
	assert.NoError(err)
	assert.Len(recs, 1)
	recs, err = rs.Recent(ctx, "g1", "nobody", 10)
	assert.NoError(err)
	assert.Empty(recs)

	// records older than the retention are not kept
	old := &ViolationRecord{GroupID: "g9", AuthorID: "a9", CreatedAt: time.Now().Add(-8 * 24 * time.Hour)}
	oldID, err := rs.Append(ctx, old)
	assert.NoError(err)
	n, err := rs.CountSince(ctx, "g9", "a9", time.Now().Add(-30*24*time.Hour))
	assert.NoError(err)
	assert.Equal(0, n)

	fresh := &ViolationRecord{GroupID: "g9", AuthorID: "a9", Kinds: []config.FilterKind{config.KindLinks}}
	id, err := rs.Append(ctx, fresh)
	assert.NoError(err)
	got, err := rs.Get(ctx, "g9", "a9", id)
	assert.NoError(err)
	assert.Equal(config.KindLinks, got.PrimaryKind())
	_, err = rs.Get(ctx, "g9", "a9", oldID)
	assert.ErrorIs(err, redis.Nil)

	recs, err = rs.Recent(ctx, "g9", "a9", 10)
	assert.NoError(err)
	if assert.Len(recs, 1) {
		assert.Equal(id, recs[0].ID)
	}
}

type flakyStore struct {
	*MemStore
	failures int
	calls    int
}

func (s *flakyStore) Append(ctx context.Context, rec *ViolationRecord) (string, error) {
	s.calls++
	if s.calls <= s.failures {
		return "", errors.New("connection reset")
	}
	return s.MemStore.Append(ctx, rec)
}

func TestAppendWithRetry(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	fs := &flakyStore{MemStore: NewMemStore(), failures: 2}
	rec := &ViolationRecord{GroupID: "g1", AuthorID: "a1"}
	id, err := AppendWithRetry(ctx, fs, rec, 3, time.Millisecond)
	assert.NoError(err)
	assert.Equal(rec.ID, id)
	assert.Equal(3, fs.calls)
	assert.Len(fs.Records("g1", "a1"), 1)

	fs = &flakyStore{MemStore: NewMemStore(), failures: 5}
	_, err = AppendWithRetry(ctx, fs, &ViolationRecord{GroupID: "g1", AuthorID: "a1"}, 3, time.Millisecond)
	assert.ErrorIs(err, ErrLedgerWriteFailed)
	assert.Equal(3, fs.calls)
}
