package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/BearBump/SortBox/internal/broker/messages"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type writerMock struct {
	mock.Mock
}

func (m *writerMock) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

type ProducerSuite struct {
	suite.Suite
	wm *writerMock
	p  *Producer
}

func (s *ProducerSuite) SetupTest() {
	s.wm = &writerMock{}
	s.p = newProducerWithWriter(s.wm)
}

func (s *ProducerSuite) TestPublishJSON_BagEventCarriesHeaders() {
	s.wm.
		On("WriteMessages", mock.Anything, mock.MatchedBy(func(msgs []kafka.Message) bool {
			return len(msgs) == 1 &&
				string(msgs[0].Key) == "BAG_000002" &&
				header(msgs[0], headerEventType) == messages.EventBagAutoProcessed &&
				header(msgs[0], headerContentType) == "application/json"
		})).
		Return(nil).
		Once()

	ev := messages.BagEvent{Type: messages.EventBagAutoProcessed, BagID: "BAG_000002", ClosedBy: "BAG_000003"}
	s.Require().NoError(s.p.PublishJSON(context.Background(), "sorting.bag-events", ev.BagID, ev))
	s.wm.AssertExpectations(s.T())
}

func (s *ProducerSuite) TestPublishJSON_PlainPayloadHasNoEventType() {
	var got kafka.Message
	s.wm.On("WriteMessages", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { got = args.Get(1).([]kafka.Message)[0] }).
		Return(nil).
		Once()

	s.Require().NoError(s.p.PublishJSON(context.Background(), "t", "k", map[string]int{"n": 1}))
	s.Empty(header(got, headerEventType))
	s.JSONEq(`{"n":1}`, string(got.Value))
}

func (s *ProducerSuite) TestPublish_ErrorWrapped() {
	want := errors.New("boom")
	s.wm.On("WriteMessages", mock.Anything, mock.Anything).Return(want).Once()

	err := s.p.Publish(context.Background(), "sorting.bag-events", []byte("k"), []byte("v"))
	s.Require().ErrorIs(err, want)
	s.Require().Contains(err.Error(), "kafka publish to sorting.bag-events")
}

func (s *ProducerSuite) TestPublishJSON_EncodeError() {
	err := s.p.PublishJSON(context.Background(), "sorting.bag-events", "k", make(chan int))
	s.Require().ErrorContains(err, "kafka encode")
	s.wm.AssertNotCalled(s.T(), "WriteMessages", mock.Anything, mock.Anything)
}

func TestProducerSuite(t *testing.T) {
	suite.Run(t, new(ProducerSuite))
}
