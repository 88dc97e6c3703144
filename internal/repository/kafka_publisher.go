package repository

import (
	"context"
	"fmt"

	"ImpactRank/internal/domain/models"
	domrepo "ImpactRank/internal/domain/repository"
)

// Producer is the subset of pkg/kafka.Producer the publisher needs.
type Producer interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

// KafkaPublisher publishes finished rankings to a topic keyed by run id.
type KafkaPublisher struct {
	producer Producer
	topic    string
}

var _ domrepo.RankingPublisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher creates Kafka publisher.
func NewKafkaPublisher(producer Producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

// RankingMessage is the wire shape of a published ranking.
type RankingMessage struct {
	RunID           string                        `json:"run_id"`
	ReferenceTime   string                        `json:"reference_time"`
	CreatedAt       string                        `json:"created_at"`
	Recommendations []models.RecommendationRecord `json:"recommendations"`
}

func (p *KafkaPublisher) PublishRanking(ctx context.Context, r *models.Ranking) error {
	if r == nil || p.producer == nil {
		return nil
	}
	msg := RankingMessage{
		RunID:           r.RunID,
		ReferenceTime:   r.ReferenceTime.UTC().Format(timeLayout),
		CreatedAt:       r.CreatedAt.UTC().Format(timeLayout),
		Recommendations: r.Records(),
	}
	if err := p.producer.Publish(ctx, p.topic, []byte(r.RunID), msg); err != nil {
		return fmt.Errorf("publish ranking %s: %w", r.RunID, err)
	}
	return nil
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"
