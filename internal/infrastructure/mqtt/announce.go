package mqtt

import (
	"encoding/json"
	"time"
)

const (
	statusOnline  = "online"
	statusOffline = "offline"

	reasonCrash    = "unexpected_disconnect"
	reasonShutdown = "graceful_shutdown"
)

// Announcement is the retained payload on the system status topic.
type Announcement struct {
	Status    string    `json:"status"`
	ClientID  string    `json:"client_id"`
	Version   string    `json:"version,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// announcement encodes the current presence of this client. The Last Will
// is encoded once at connect time, so its timestamp is the connect time.
func (c *Client) announcement(status, reason string) []byte {
	payload, err := json.Marshal(Announcement{
		Status:    status,
		ClientID:  c.clientID,
		Version:   c.version,
		Reason:    reason,
		Timestamp: time.Now().UTC().Truncate(time.Second),
	})
	if err != nil {
		// Strings and a time always encode.
		return []byte(`{"status":"` + status + `"}`)
	}
	return payload
}
