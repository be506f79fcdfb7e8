package split

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"resnet_lib/nn"
	"resnet_lib/tensor"

	"github.com/google/uuid"
)

// Serve answers forward requests with tail until the peer sends MsgDone or
// closes the stream. A failed forward pass is reported to the peer and the
// session continues.
func Serve(p *Protocol, tail nn.Module) error {
	hello, err := p.ReceiveHello()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("split: handshake: %w", err)
	}
	log := slog.With("session", hello.Session)
	log.Info("session opened", "model", hello.Model, "cut", hello.Cut, "tail", tail.Tag())

	for {
		payload, err := p.ReceiveForward()
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			log.Info("session closed")
			return nil
		}
		if err != nil {
			return fmt.Errorf("split: %w", err)
		}
		log.Debug("batch received", "batch", payload.BatchID, "shape", payload.Shape, "compact", payload.Compact())

		out, err := forward(tail, payload)
		if err != nil {
			log.Warn("forward failed", "batch", payload.BatchID, "error", err)
			if err := p.SendError(err); err != nil {
				return fmt.Errorf("split: %w", err)
			}
			continue
		}
		if err := p.SendOutput(NewTensorPayload(hello.Session, payload.BatchID, out, payload.Compact())); err != nil {
			return fmt.Errorf("split: %w", err)
		}
	}
}

func forward(tail nn.Module, payload *TensorPayload) (*tensor.Tensor, error) {
	x, err := payload.Tensor()
	if err != nil {
		return nil, err
	}
	return tail.Forward(x)
}

// Remote is the client side of a session: an nn.Module whose forward pass
// runs on the peer. Calls are serialized.
type Remote struct {
	Session string
	// Compact sends activations in half precision.
	Compact bool

	mu    sync.Mutex
	p     *Protocol
	batch int
}

// Dial opens a session on p for the tail of model after cut.
func Dial(p *Protocol, model string, cut int, compact bool) (*Remote, error) {
	r := &Remote{Session: uuid.NewString(), Compact: compact, p: p}
	if err := p.SendHello(HelloPayload{Session: r.Session, Model: model, Cut: cut}); err != nil {
		return nil, fmt.Errorf("split: handshake: %w", err)
	}
	return r, nil
}

func (r *Remote) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.batch
	r.batch++
	if err := r.p.SendForward(NewTensorPayload(r.Session, id, x, r.Compact)); err != nil {
		return nil, fmt.Errorf("split: send batch %d: %w", id, err)
	}
	out, err := r.p.ReceiveOutput()
	if err != nil {
		return nil, fmt.Errorf("split: batch %d: %w", id, err)
	}
	if out.BatchID != id {
		return nil, fmt.Errorf("split: expected batch %d, got %d", id, out.BatchID)
	}
	return out.Tensor()
}

// Close ends the session.
func (r *Remote) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.p.SendDone()
}

func (r *Remote) Params() []nn.Param { return nil }

func (r *Remote) Tag() string { return "Remote_" + r.Session }
