package wire

// Delivery is a fully-assembled message handed to a Consumer once its
// content header and all content-body frames have arrived (spec section 3).
type Delivery struct {
	ConsumerTag string
	DeliveryTag uint64
	Redelivered bool
	Exchange    string
	RoutingKey  string
	Properties  BasicProperties
	Body        []byte

	bodySize uint64
}

// NewDelivery starts an in-progress delivery; Body accumulates as content
// body frames arrive.
func NewDelivery(consumerTag string, deliveryTag uint64, redelivered bool, exchange, routingKey string) *Delivery {
	return &Delivery{
		ConsumerTag: consumerTag,
		DeliveryTag: deliveryTag,
		Redelivered: redelivered,
		Exchange:    exchange,
		RoutingKey:  routingKey,
	}
}

// SetBodySize records the content header's declared body_size.
func (d *Delivery) SetBodySize(size uint64) {
	d.bodySize = size
}

// BodySize returns the expected total body length from the content header.
func (d *Delivery) BodySize() uint64 {
	return d.bodySize
}

// ReceiveContent appends one content-body frame's payload.
func (d *Delivery) ReceiveContent(chunk []byte) {
	d.Body = append(d.Body, chunk...)
}

// Complete reports whether every body byte promised by the header has
// arrived (spec section 4.2, content transfer inbound).
func (d *Delivery) Complete() bool {
	return uint64(len(d.Body)) >= d.bodySize
}

// Remaining returns how many body bytes are still expected.
func (d *Delivery) Remaining() uint64 {
	if uint64(len(d.Body)) >= d.bodySize {
		return 0
	}
	return d.bodySize - uint64(len(d.Body))
}
