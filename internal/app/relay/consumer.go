package relay

import (
	"encoding/json"
	"strings"
)

// Consumer reconstructs discrete events from an arbitrarily-chunked byte
// stream. Network reads may split a JSON object anywhere; the consumer holds
// back the trailing unterminated segment of each chunk so no event is parsed
// twice and none is dropped for spanning two reads.
//
// It implements io.Writer so a response body can be copied straight into it.
type Consumer struct {
	onEvent   func(Event)
	carry     strings.Builder
	malformed int
	closed    bool
}

// NewConsumer creates a consumer that invokes onEvent for each parsed event,
// in stream order.
func NewConsumer(onEvent func(Event)) *Consumer {
	return &Consumer{onEvent: onEvent}
}

// Write feeds one received chunk. Always reports the full chunk as consumed;
// malformed candidate lines are counted and skipped, never fatal.
func (c *Consumer) Write(chunk []byte) (int, error) {
	c.carry.Write(chunk)

	buffered := c.carry.String()
	segments := strings.Split(buffered, "\n")

	// Every segment but the last ended in a newline and is a complete
	// candidate event; the last one may continue in the next chunk.
	c.carry.Reset()
	c.carry.WriteString(segments[len(segments)-1])

	for _, segment := range segments[:len(segments)-1] {
		c.parse(segment)
	}
	return len(chunk), nil
}

// Close makes one final parse attempt on any buffered remainder. Further
// writes after Close are not allowed.
func (c *Consumer) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	remainder := c.carry.String()
	c.carry.Reset()
	c.parse(remainder)
	return nil
}

// Malformed returns how many candidate lines failed to parse.
func (c *Consumer) Malformed() int {
	return c.malformed
}

func (c *Consumer) parse(segment string) {
	segment = strings.TrimSpace(segment)
	if segment == "" {
		return
	}

	var ev Event
	if err := json.Unmarshal([]byte(segment), &ev); err != nil {
		c.malformed++
		return
	}
	c.onEvent(ev)
}
