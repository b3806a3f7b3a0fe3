package models

import (
	"encoding/json"
	"errors"
)

// SubscriptionKeys carries the client-side encryption keys of a push
// subscription, base64url encoded as the browser hands them out.
type SubscriptionKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// SubscribeRequest is the body of POST /push/subscribe. It mirrors the
// serialized PushSubscription a browser produces.
type SubscribeRequest struct {
	Endpoint string           `json:"endpoint"`
	Keys     SubscriptionKeys `json:"keys"`

	// UserID optionally attaches the subscription to a player. When the
	// request carries a valid bearer token, the token's user wins over
	// this field.
	UserID string `json:"userId,omitempty"`

	// UserAgent describes the subscribing browser. Falls back to the
	// User-Agent header when absent.
	UserAgent string `json:"userAgent,omitempty"`
}

// UnsubscribeRequest is the body of POST /push/unsubscribe.
type UnsubscribeRequest struct {
	Endpoint string `json:"endpoint"`
}

// AckResponse acknowledges a subscribe or unsubscribe.
type AckResponse struct {
	OK bool `json:"ok"`
}

// SendTarget selects the audience of a send request. On the wire it is
// either the string "all" or an object naming users:
//
//	"target": "all"
//	"target": {"userId": "player-1"}
//	"target": {"userIds": ["player-1", "player-2"]}
type SendTarget struct {
	All     bool     `json:"-"`
	UserID  string   `json:"userId,omitempty"`
	UserIDs []string `json:"userIds,omitempty"`
}

// UnmarshalJSON implements json.Unmarshaler for SendTarget.
func (t *SendTarget) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != "all" {
			return errors.New(`target string must be "all"`)
		}
		t.All = true
		return nil
	}

	type plain SendTarget
	return json.Unmarshal(data, (*plain)(t))
}

// MarshalJSON implements json.Marshaler for SendTarget.
func (t SendTarget) MarshalJSON() ([]byte, error) {
	if t.All {
		return json.Marshal("all")
	}
	type plain SendTarget
	return json.Marshal(plain(t))
}

// Empty reports whether the target selects nobody.
func (t SendTarget) Empty() bool {
	return !t.All && t.UserID == "" && len(t.UserIDs) == 0
}

// SendRequest is the body of POST /push/send.
type SendRequest struct {
	Target SendTarget             `json:"target"`
	Title  string                 `json:"title"`
	Body   string                 `json:"body,omitempty"`
	Data   map[string]interface{} `json:"data,omitempty"`
}

// SendResponse reports the per-outcome counts of a completed fan-out.
type SendResponse struct {
	Delivered      int `json:"delivered"`
	Expired        int `json:"expired"`
	TransientError int `json:"transientError"`
	PermanentError int `json:"permanentError"`
}

// VAPIDPublicKeyResponse carries the application server key clients
// subscribe against.
type VAPIDPublicKeyResponse struct {
	Key string `json:"key"`
}
