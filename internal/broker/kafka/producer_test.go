package kafka

import (
	"context"
	"testing"

	"github.com/BearBump/SortBox/internal/broker/messages"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	last []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.last = append([]kafka.Message{}, msgs...)
	return w.err
}

func TestProducer_PublishJSON(t *testing.T) {
	fw := &fakeWriter{}
	p := newProducerWithWriter(fw)

	ev := messages.BagEvent{Type: messages.EventBagCreated, BagID: "BAG_000007", Socket: "SEP"}
	require.NoError(t, p.PublishJSON(context.Background(), "sorting.bag-events", ev.BagID, ev))
	require.Len(t, fw.last, 1)
	require.Equal(t, "sorting.bag-events", fw.last[0].Topic)
	require.Equal(t, []byte("BAG_000007"), fw.last[0].Key)
	require.JSONEq(t, `{"type":"bag.created","bag_id":"BAG_000007","id":0,"socket":"SEP","bag_type_id":0,"extra":false,"at":"0001-01-01T00:00:00Z"}`, string(fw.last[0].Value))
}

func TestProducer_CloseWithoutCloser(t *testing.T) {
	p := newProducerWithWriter(&fakeWriter{})
	require.NoError(t, p.Close())
}

func TestNewProducer(t *testing.T) {
	p := NewProducer([]string{"localhost:0"})
	require.NotNil(t, p)
	require.NoError(t, p.Close())
}
