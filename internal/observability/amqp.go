package observability

import "context"

// Publisher is the subset of rabbitmq.Publisher used for lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

var defaultPublisher Publisher

func SetPublisher(publisher Publisher) {
	defaultPublisher = publisher
}

func PublishEvent(ctx context.Context, routingKey string, message interface{}, headers map[string]string) error {
	if defaultPublisher == nil {
		return nil
	}

	err := defaultPublisher.Publish(ctx, routingKey, withHeaders(message, headers))
	if err != nil {
		IncAMQPPublishError()
	}
	return err
}

func withHeaders(message interface{}, headers map[string]string) interface{} {
	envelope, ok := message.(EventEnvelope)
	if !ok || len(headers) == 0 {
		return message
	}
	envelope.Headers = headers
	return envelope
}
