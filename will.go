package umqtt

// WillMessage represents an MQTT Last Will and Testament message.
type WillMessage struct {
	// Topic is the will topic.
	Topic string

	// Payload is the will payload.
	Payload []byte

	// QoS is the quality of service level (0, 1, or 2).
	QoS byte

	// Retain indicates if the will message should be retained.
	Retain bool
}

// WillMessageFromConnect extracts the will message from a CONNECT packet.
func WillMessageFromConnect(pkt *ConnectPacket) *WillMessage {
	if pkt == nil || !pkt.WillFlag {
		return nil
	}

	return &WillMessage{
		Topic:   pkt.WillTopic,
		Payload: pkt.WillMessage,
		QoS:     pkt.WillQoS,
		Retain:  pkt.WillRetain,
	}
}

// applyTo sets the will fields of a CONNECT packet.
func (w *WillMessage) applyTo(pkt *ConnectPacket) {
	if w == nil || w.Topic == "" {
		return
	}

	pkt.WillFlag = true
	pkt.WillTopic = w.Topic
	pkt.WillMessage = w.Payload
	pkt.WillQoS = w.QoS
	pkt.WillRetain = w.Retain
}

// ToMessage converts a WillMessage to a Message.
func (w *WillMessage) ToMessage() *Message {
	return &Message{
		Topic:   w.Topic,
		Payload: w.Payload,
		QoS:     w.QoS,
		Retain:  w.Retain,
	}
}

// Validate validates the will message.
func (w *WillMessage) Validate() error {
	if err := ValidateTopicName(w.Topic); err != nil {
		return err
	}
	if w.QoS > 2 {
		return ErrInvalidQoS
	}
	if len(w.Payload) > maxUint16 {
		return ErrStringTooLong
	}
	return nil
}
