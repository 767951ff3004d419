package ssemarshaller

import (
	"bytes"
	"fmt"
	"io"

	"github.com/webitel/code-delivery-service/internal/domain/event"
	"github.com/webitel/code-delivery-service/internal/handler/marshaller"
)

// WriteEvent writes one Server-Sent Events frame: event name, id and the
// payload as a single data line.
func WriteEvent(w io.Writer, ev event.Eventer) error {
	env, err := marshaller.NewEnvelope(ev)
	if err != nil {
		return err
	}
	// json.Marshal output never contains raw newlines, but a custom Encode might
	data := bytes.ReplaceAll(env.Payload, []byte("\n"), []byte("\ndata: "))
	_, err = fmt.Fprintf(w, "event: %s\nid: %s\ndata: %s\n\n", env.Event, env.ID, data)
	return err
}

// WriteComment writes an SSE comment line, used as a heartbeat.
func WriteComment(w io.Writer, text string) error {
	_, err := fmt.Fprintf(w, ": %s\n\n", text)
	return err
}
