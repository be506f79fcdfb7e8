// Package split runs the tail of a network in another process: the client
// evaluates the head locally and ships the cut activation over a gob stream.
package split

import (
	"encoding/gob"
	"fmt"
	"io"

	"resnet_lib/tensor"

	"github.com/x448/float16"
)

func init() {
	// Register types for gob encoding
	gob.Register(HelloPayload{})
	gob.Register(TensorPayload{})
}

// MessageType defines message types for the split inference protocol
type MessageType int

const (
	MsgHello MessageType = iota
	MsgForwardInput
	MsgForwardOutput
	MsgDone
	MsgError
)

// Message represents a message in the split inference protocol
type Message struct {
	Type    MessageType
	Payload interface{}
}

// HelloPayload opens a session.
type HelloPayload struct {
	Session string
	// Model is the tag of the network the client split.
	Model string
	Cut   int
}

// TensorPayload carries one activation. Exactly one of Data and Half is set;
// Half holds IEEE 754 binary16 bit patterns.
type TensorPayload struct {
	Session string
	BatchID int
	Shape   []int
	Data    []float64
	Half    []uint16
}

// NewTensorPayload packs t, rounding to half precision when compact is set.
func NewTensorPayload(session string, batchID int, t *tensor.Tensor, compact bool) TensorPayload {
	p := TensorPayload{Session: session, BatchID: batchID, Shape: append([]int(nil), t.Shape...)}
	if compact {
		p.Half = make([]uint16, len(t.Data))
		for i, v := range t.Data {
			p.Half[i] = float16.Fromfloat32(float32(v)).Bits()
		}
	} else {
		p.Data = append([]float64(nil), t.Data...)
	}
	return p
}

// Compact reports whether the payload is half precision.
func (p *TensorPayload) Compact() bool { return p.Half != nil }

// Tensor unpacks the payload.
func (p *TensorPayload) Tensor() (*tensor.Tensor, error) {
	if !p.Compact() {
		return tensor.FromData(p.Data, p.Shape...)
	}
	data := make([]float64, len(p.Half))
	for i, h := range p.Half {
		data[i] = float64(float16.Frombits(h).Float32())
	}
	return tensor.FromData(data, p.Shape...)
}

// Protocol handles split inference communication
type Protocol struct {
	encoder *gob.Encoder
	decoder *gob.Decoder
}

// NewProtocol creates a new protocol handler
func NewProtocol(r io.Reader, w io.Writer) *Protocol {
	return &Protocol{
		encoder: gob.NewEncoder(w),
		decoder: gob.NewDecoder(r),
	}
}

// Send sends a message
func (p *Protocol) Send(msg *Message) error {
	return p.encoder.Encode(msg)
}

// Receive receives a message
func (p *Protocol) Receive() (*Message, error) {
	var msg Message
	if err := p.decoder.Decode(&msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// SendHello opens a session
func (p *Protocol) SendHello(h HelloPayload) error {
	return p.Send(&Message{Type: MsgHello, Payload: h})
}

// SendForward sends a cut activation to the tail
func (p *Protocol) SendForward(payload TensorPayload) error {
	return p.Send(&Message{Type: MsgForwardInput, Payload: payload})
}

// SendOutput sends the tail output back to the head
func (p *Protocol) SendOutput(payload TensorPayload) error {
	return p.Send(&Message{Type: MsgForwardOutput, Payload: payload})
}

// SendDone signals completion
func (p *Protocol) SendDone() error {
	return p.Send(&Message{Type: MsgDone})
}

// SendError sends an error message
func (p *Protocol) SendError(err error) error {
	return p.Send(&Message{
		Type:    MsgError,
		Payload: err.Error(),
	})
}

// RemoteError is an error reported by the peer.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string { return "remote error: " + e.Message }

// receive reads one message of type want. MsgDone maps to io.EOF and
// MsgError to *RemoteError.
func (p *Protocol) receive(want ...MessageType) (*Message, error) {
	msg, err := p.Receive()
	if err != nil {
		return nil, err
	}
	switch msg.Type {
	case MsgError:
		return nil, &RemoteError{Message: fmt.Sprint(msg.Payload)}
	case MsgDone:
		return nil, io.EOF
	}
	for _, t := range want {
		if msg.Type == t {
			return msg, nil
		}
	}
	return nil, fmt.Errorf("expected message %v, got %d", want, msg.Type)
}

// ReceiveHello receives a session opening
func (p *Protocol) ReceiveHello() (*HelloPayload, error) {
	msg, err := p.receive(MsgHello)
	if err != nil {
		return nil, err
	}
	payload, ok := msg.Payload.(HelloPayload)
	if !ok {
		return nil, fmt.Errorf("invalid hello payload type %T", msg.Payload)
	}
	return &payload, nil
}

// ReceiveForward receives a cut activation
func (p *Protocol) ReceiveForward() (*TensorPayload, error) {
	return p.receiveTensor(MsgForwardInput)
}

// ReceiveOutput receives a tail output
func (p *Protocol) ReceiveOutput() (*TensorPayload, error) {
	return p.receiveTensor(MsgForwardOutput)
}

func (p *Protocol) receiveTensor(want MessageType) (*TensorPayload, error) {
	msg, err := p.receive(want)
	if err != nil {
		return nil, err
	}
	payload, ok := msg.Payload.(TensorPayload)
	if !ok {
		return nil, fmt.Errorf("invalid tensor payload type %T", msg.Payload)
	}
	return &payload, nil
}
