package messagepipeline

import (
	"time"
)

// TopicAttribute is the attribute holding the MQTT topic a message was
// published on. The MQTT consumer sets it; upstream forwarders to Pub/Sub
// are expected to set it too.
const TopicAttribute = "mqtt_topic"

// Message is the transport-neutral form of a delivered message. Consumers
// fill it from their broker; the pipeline acknowledges it through Ack or Nack
// exactly once.
type Message struct {
	MessageData

	// Attributes holds broker metadata. MQTT deliveries carry their topic
	// under TopicAttribute; Pub/Sub attributes are passed through as published.
	Attributes map[string]string

	// Ack marks the message handled. The broker will not deliver it again.
	Ack func()

	// Nack asks the broker to redeliver the message.
	Nack func()
}

// MessageData is the broker-independent content of a message.
type MessageData struct {
	// ID is the broker's message identifier, or a generated one when the
	// broker has none.
	ID string `json:"id"`

	Payload []byte `json:"payload"`

	// PublishTime is when the broker accepted the message, or when it was
	// received if the broker does not say.
	PublishTime time.Time `json:"publishTime"`
}
