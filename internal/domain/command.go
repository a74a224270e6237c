package domain

import "time"

// RoutePayload is the inner, signed payload of a command. The field names
// are the wire format and must not change: one JSON object per line,
// {"ruta": [s1, s2, s3], "timestamp": <unix seconds, float>}.
type RoutePayload struct {
	Ruta      [RouteLegs]string `json:"ruta"`
	Timestamp float64           `json:"timestamp"`
}

// Route converts the payload back into a Route value. The intermediate
// currency is not carried on the wire; the executor resolves directions from
// pair metadata alone.
func (p RoutePayload) Route() Route {
	return Route{Symbols: p.Ruta}
}

// SignedCommand is the authenticated envelope carrying a serialized
// RoutePayload. Data holds the exact payload bytes the signature was
// computed over; Signature is hex-encoded HMAC-SHA256. Verified exactly
// once by the receiver, never mutated.
type SignedCommand struct {
	Data      string `json:"data"`
	Signature string `json:"signature"`
}

// RouteCommand is a verified command as handed to the execution engine.
type RouteCommand struct {
	ID         string // derived from the envelope signature, used for dedup
	Payload    RoutePayload
	ReceivedAt time.Time
}
