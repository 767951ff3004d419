package lpmarshaller

import (
	"encoding/json"

	"github.com/webitel/code-delivery-service/internal/domain/event"
	"github.com/webitel/code-delivery-service/internal/handler/marshaller"
)

// Response defines the top-level JSON array to support event batching.
type Response struct {
	Events []marshaller.Envelope `json:"events"`
}

// MarshallEvents converts a slice of domain events into a single JSON batch.
// Events that fail to encode are left out of the batch.
func MarshallEvents(events []event.Eventer) ([]byte, error) {
	res := Response{
		Events: make([]marshaller.Envelope, 0, len(events)),
	}
	for _, ev := range events {
		env, err := marshaller.NewEnvelope(ev)
		if err != nil {
			continue
		}
		res.Events = append(res.Events, env)
	}
	return json.Marshal(res)
}
