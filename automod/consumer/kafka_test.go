package consumer

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/aegis-bot/warden/automod/engine"

	"github.com/stretchr/testify/assert"
	"github.com/twmb/franz-go/pkg/kfake"
	"github.com/twmb/franz-go/pkg/kgo"
)

type collectingHandler struct {
	mu     sync.Mutex
	events []*engine.MessageEvent
}

func (h *collectingHandler) OnMessage(evt *engine.MessageEvent) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, evt)
	return true
}

func (h *collectingHandler) IDs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, e := range h.events {
		out = append(out, e.ID)
	}
	return out
}

func TestKafkaConsumer(t *testing.T) {
	assert := assert.New(t)
	topic := "chat-messages"

	cluster, err := kfake.NewCluster(kfake.NumBrokers(1), kfake.SeedTopics(1, topic))
	if err != nil {
		t.Fatal(err)
	}
	defer cluster.Close()
	addrs := cluster.ListenAddrs()

	producer, err := kgo.NewClient(kgo.SeedBrokers(addrs...), kgo.ProduceRequestTimeout(time.Second))
	if err != nil {
		t.Fatal(err)
	}
	defer producer.Close()

	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var records []*kgo.Record
	for _, id := range []string{"m1", "m2"} {
		b, err := json.Marshal(engine.MessageEvent{ID: id, GroupID: "g1", AuthorID: "u1", ChannelID: "c1", Content: "hi", Timestamp: ts})
		assert.NoError(err)
		records = append(records, &kgo.Record{Topic: topic, Key: []byte("g1/u1"), Value: b})
	}
	// neither of these reaches the handler
	records = append(records,
		&kgo.Record{Topic: topic, Value: []byte("not json")},
		&kgo.Record{Topic: topic, Value: []byte(`{"id":"m3","content":"no group"}`)},
	)
	noTime, _ := json.Marshal(engine.MessageEvent{ID: "m4", GroupID: "g1", AuthorID: "u1", ChannelID: "c1"})
	records = append(records, &kgo.Record{Topic: topic, Value: noTime})
	assert.NoError(producer.ProduceSync(context.Background(), records...).FirstErr())

	h := &collectingHandler{}
	kc := &KafkaConsumer{
		Brokers: addrs,
		Topic:   topic,
		Group:   "test-group",
		Handler: h,
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- kc.Run(ctx) }()

	assert.Eventually(func() bool { return len(h.IDs()) == 3 }, 10*time.Second, 10*time.Millisecond)
	cancel()
	assert.NoError(<-done)

	assert.Equal([]string{"m1", "m2", "m4"}, h.IDs())
	assert.True(h.events[0].Timestamp.Equal(ts))
	// falls back to the record timestamp
	assert.False(h.events[2].Timestamp.IsZero())
}

func TestKafkaConsumerConfig(t *testing.T) {
	assert := assert.New(t)

	kc := &KafkaConsumer{Handler: &collectingHandler{}}
	assert.Error(kc.Run(context.Background()))

	kc = &KafkaConsumer{Brokers: []string{"localhost:9092"}, Topic: "t"}
	assert.Error(kc.Run(context.Background()))
}
