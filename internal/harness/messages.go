package harness

import (
	"encoding/json"
	"fmt"

	"github.com/Uproxide/globed2/dispatch"
)

// The harness exercises the dispatcher with the three packet families the
// overlay actually routes: player positions, chat lines and status changes.
// Each carries its producer id and per-producer index so assertions can
// reconstruct ordering without trusting the trace.

// PlayerPosition is a position update from one producer.
type PlayerPosition struct {
	Producer int     `json:"producer"`
	Index    int     `json:"index"`
	X        float32 `json:"x"`
	Y        float32 `json:"y"`
}

// ChatLine is a chat message from one producer.
type ChatLine struct {
	Producer int    `json:"producer"`
	Index    int    `json:"index"`
	Text     string `json:"text"`
}

// PlayerStatus is a connection status change from one producer.
type PlayerStatus struct {
	Producer  int  `json:"producer"`
	Index     int  `json:"index"`
	Connected bool `json:"connected"`
}

// Kind names as they appear in scenario files.
const (
	KindPosition = "position"
	KindChat     = "chat"
	KindStatus   = "status"
)

// KnownKinds lists every message kind a scenario may reference.
var KnownKinds = []string{KindPosition, KindChat, KindStatus}

// makeMessage builds the payload for one (kind, producer, index) slot.
func makeMessage(kind string, producer, index int) any {
	switch kind {
	case KindPosition:
		return PlayerPosition{Producer: producer, Index: index, X: float32(index), Y: float32(producer)}
	case KindChat:
		return ChatLine{Producer: producer, Index: index, Text: fmt.Sprintf("msg %d from %d", index, producer)}
	case KindStatus:
		return PlayerStatus{Producer: producer, Index: index, Connected: index%2 == 0}
	default:
		panic(fmt.Sprintf("harness: unknown message kind %q", kind))
	}
}

// decodeMessage is makeMessage's inverse for replay: it rebuilds a payload
// of the given kind from its journaled JSON form.
func decodeMessage(kind, payload string) (any, error) {
	switch kind {
	case KindPosition:
		var m PlayerPosition
		err := json.Unmarshal([]byte(payload), &m)
		return m, err
	case KindChat:
		var m ChatLine
		err := json.Unmarshal([]byte(payload), &m)
		return m, err
	case KindStatus:
		var m PlayerStatus
		err := json.Unmarshal([]byte(payload), &m)
		return m, err
	default:
		return nil, fmt.Errorf("unknown message kind %q", kind)
	}
}

// DecodeMessage is the exported form used by the replay command.
func DecodeMessage(kind, payload string) (any, error) {
	return decodeMessage(kind, payload)
}

// kindOf maps a payload back to its scenario kind name, or "" for foreign
// types.
func kindOf(msg any) string {
	switch msg.(type) {
	case PlayerPosition:
		return KindPosition
	case ChatLine:
		return KindChat
	case PlayerStatus:
		return KindStatus
	default:
		return ""
	}
}

// KindOf is the exported form used by the replay command.
func KindOf(msg any) string {
	return kindOf(msg)
}

// originOf extracts the (producer, index) stamp from a payload.
func originOf(msg any) (producer, index int) {
	switch m := msg.(type) {
	case PlayerPosition:
		return m.Producer, m.Index
	case ChatLine:
		return m.Producer, m.Index
	case PlayerStatus:
		return m.Producer, m.Index
	default:
		return -1, -1
	}
}

// Collector is the owner object registered for one message kind. Handlers
// append on the consumer goroutine; readers inspect after the run has joined.
type Collector struct {
	Kind     string
	Received []Receipt
}

// Receipt records one delivered payload.
type Receipt struct {
	Producer int
	Index    int
}

// registerCollector wires c as the listener for its kind on d.
func registerCollector(d *dispatch.Dispatcher, c *Collector) {
	switch c.Kind {
	case KindPosition:
		dispatch.Listen(d, c, func(c *Collector, m PlayerPosition) {
			c.Received = append(c.Received, Receipt{Producer: m.Producer, Index: m.Index})
		})
	case KindChat:
		dispatch.Listen(d, c, func(c *Collector, m ChatLine) {
			c.Received = append(c.Received, Receipt{Producer: m.Producer, Index: m.Index})
		})
	case KindStatus:
		dispatch.Listen(d, c, func(c *Collector, m PlayerStatus) {
			c.Received = append(c.Received, Receipt{Producer: m.Producer, Index: m.Index})
		})
	default:
		panic(fmt.Sprintf("harness: unknown message kind %q", c.Kind))
	}
}

// detachCollector removes c's registration again (the "owner torn down with
// messages still pending" case).
func detachCollector(d *dispatch.Dispatcher, c *Collector) {
	dispatch.Unlisten(d, c)
}

// AttachCollector is the exported form used by the replay command.
func AttachCollector(d *dispatch.Dispatcher, c *Collector) {
	registerCollector(d, c)
}
