package wire

import "time"

// BasicProperties mirrors the AMQP 0-9-1 basic content-header properties
// that travel alongside basic.publish/basic.deliver/basic.get-ok/basic.return
// content (spec section 3, Message/Delivery).
type BasicProperties struct {
	ContentType     string
	ContentEncoding string
	Headers         Table
	DeliveryMode    uint8
	Priority        uint8
	CorrelationID   string
	ReplyTo         string
	Expiration      string
	MessageID       string
	Timestamp       time.Time
	Type            string
	UserID          string
	AppID           string
}

// Persistent reports whether DeliveryMode marks this message for persistence
// (mode 2), the same convention the teacher's amqp.Message.IsPersistent uses.
func (p BasicProperties) Persistent() bool {
	return p.DeliveryMode == 2
}
