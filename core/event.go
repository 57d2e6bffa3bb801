package core

import (
	"time"
)

// Event is a single EVE telemetry record as emitted by the signature
// engine: an open JSON object. The reader never rejects an event for
// missing fields; the typed accessors below return zero values instead.
// Events are read-only to the pipeline.
type Event map[string]any

// EVE event type discriminators.
const (
	EventTypeHTTP  = "http"
	EventTypeFlow  = "flow"
	EventTypeDNS   = "dns"
	EventTypeTLS   = "tls"
	EventTypeAlert = "alert"
)

// Type returns the event_type discriminator, or "" when absent.
func (e Event) Type() string {
	return e.stringField("event_type")
}

// DestIP returns the destination IP, accepting both the EVE field name and
// the long-form alias some exporters use.
func (e Event) DestIP() string {
	if ip := e.stringField("dest_ip"); ip != "" {
		return ip
	}
	return e.stringField("destination_ip")
}

// DestPort returns the destination port, or 0 when absent.
func (e Event) DestPort() int {
	return e.intField("dest_port")
}

// SrcIP returns the source IP, or "" when absent.
func (e Event) SrcIP() string {
	if ip := e.stringField("src_ip"); ip != "" {
		return ip
	}
	return e.stringField("source_ip")
}

// Proto returns the transport protocol, defaulting to TCP when absent so
// synthesized rules always carry a valid protocol token.
func (e Event) Proto() string {
	if p := e.stringField("proto"); p != "" {
		return p
	}
	return "TCP"
}

// Synthetic reports whether this event was fabricated from classifier
// metrics rather than captured from live traffic.
func (e Event) Synthetic() bool {
	b, _ := e["synthetic"].(bool)
	return b
}

// HTTP returns the nested http sub-object, or nil.
func (e Event) HTTP() map[string]any { return e.subObject("http") }

// Flow returns the nested flow sub-object, or nil.
func (e Event) Flow() map[string]any { return e.subObject("flow") }

// DNS returns the nested dns sub-object, or nil.
func (e Event) DNS() map[string]any { return e.subObject("dns") }

// TLS returns the nested tls sub-object, or nil.
func (e Event) TLS() map[string]any { return e.subObject("tls") }

// Alert returns the nested alert sub-object, or nil.
func (e Event) Alert() map[string]any { return e.subObject("alert") }

// Timestamp parses the event timestamp. EVE writes RFC3339 with
// microseconds and a numeric zone; some producers write plain RFC3339 or a
// numeric epoch. The second return value is false when no timestamp could
// be parsed, leaving the fail-open/fail-closed decision to the caller.
func (e Event) Timestamp() (time.Time, bool) {
	raw, ok := e["timestamp"]
	if !ok {
		return time.Time{}, false
	}

	switch v := raw.(type) {
	case string:
		for _, layout := range []string{
			"2006-01-02T15:04:05.999999-0700",
			time.RFC3339Nano,
			time.RFC3339,
		} {
			if t, err := time.Parse(layout, v); err == nil {
				return t, true
			}
		}
		return time.Time{}, false
	case float64:
		return time.Unix(int64(v), 0), true
	case int64:
		return time.Unix(v, 0), true
	default:
		return time.Time{}, false
	}
}

func (e Event) stringField(key string) string {
	s, _ := e[key].(string)
	return s
}

// intField tolerates the numeric types JSON decoding and synthetic event
// construction produce for port and counter fields.
func (e Event) intField(key string) int {
	switch v := e[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	default:
		return 0
	}
}

func (e Event) subObject(key string) map[string]any {
	m, _ := e[key].(map[string]any)
	return m
}

// IntFrom reads an integer field out of a nested sub-object, tolerating
// the same numeric representations as the top-level accessors.
func IntFrom(obj map[string]any, key string) int {
	if obj == nil {
		return 0
	}
	return Event(obj).intField(key)
}

// StringFrom reads a string field out of a nested sub-object.
func StringFrom(obj map[string]any, key string) string {
	if obj == nil {
		return ""
	}
	s, _ := obj[key].(string)
	return s
}
