package wsmarshaller

import (
	"encoding/json"

	"github.com/webitel/code-delivery-service/internal/domain/event"
	"github.com/webitel/code-delivery-service/internal/handler/marshaller"
)

// MarshallDeliveryEvent prepares one WebSocket text frame.
func MarshallDeliveryEvent(ev event.Eventer) ([]byte, error) {
	env, err := marshaller.NewEnvelope(ev)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}
