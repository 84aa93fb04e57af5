package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"custody-wallet/internal/model"
)

type flakyProducer struct {
	failAt int
	calls  int
	keys   []string
}

func (p *flakyProducer) Publish(ctx context.Context, topic, key string, payload []byte) error {
	p.calls++
	if p.calls == p.failAt {
		return errors.New("broker unavailable")
	}
	p.keys = append(p.keys, key)
	return nil
}

func TestRelayStopsAtFirstFailure(t *testing.T) {
	msgs := []model.OutboxMessage{
		{ID: 1, Topic: model.TopicCredit, Key: "7"},
		{ID: 2, Topic: model.TopicCredit, Key: "8"},
		{ID: 3, Topic: model.TopicCredit, Key: "9"},
	}

	p := &flakyProducer{failAt: 2}
	assert.Equal(t, []uint64{1}, relay(context.Background(), p, msgs))
	assert.Equal(t, []string{"7"}, p.keys)

	p = &flakyProducer{}
	assert.Equal(t, []uint64{1, 2, 3}, relay(context.Background(), p, msgs))
}
