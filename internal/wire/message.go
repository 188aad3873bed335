// Package wire defines the controller<->agent wire protocol and a
// minimal framed transport it rides over. Transport is the seam a real
// deployment plugs a TLS or WebSocket layer into; this package only
// carries the message shapes over a plain length-prefixed frame.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/nfgraph/nfgraph/internal/artifact"
)

// MessageKind discriminates the wire messages.
type MessageKind uint8

const (
	KindRequestChain MessageKind = iota
	KindChain
	KindRequestChainError
)

// ClientToServer is the agent's sole outbound message: a request for
// the compiled chain bundle matching its target triple, optionally
// carrying a bearer token.
type ClientToServer struct {
	TargetTriple string
	BearerToken  string
}

// ServerToClient is either the requested Chain bundle or a rejection
// reason.
type ServerToClient struct {
	Chain        *artifact.Bundle
	ErrorMessage string // populated iff Chain == nil
}

// EncodeRequest serializes a ClientToServer message.
func EncodeRequest(m ClientToServer) []byte {
	var buf []byte
	buf = append(buf, byte(KindRequestChain))
	buf = appendString(buf, m.TargetTriple)
	buf = appendString(buf, m.BearerToken)
	return buf
}

// DecodeRequest deserializes a ClientToServer message.
func DecodeRequest(data []byte) (ClientToServer, error) {
	if len(data) == 0 || MessageKind(data[0]) != KindRequestChain {
		return ClientToServer{}, fmt.Errorf("decode request: bad message kind")
	}
	rest := data[1:]
	triple, rest, err := readString(rest)
	if err != nil {
		return ClientToServer{}, fmt.Errorf("decode request target_triple: %w", err)
	}
	token, _, err := readString(rest)
	if err != nil {
		return ClientToServer{}, fmt.Errorf("decode request bearer_token: %w", err)
	}
	return ClientToServer{TargetTriple: triple, BearerToken: token}, nil
}

// EncodeResponse serializes a ServerToClient message.
func EncodeResponse(m ServerToClient) ([]byte, error) {
	if m.Chain == nil {
		buf := []byte{byte(KindRequestChainError)}
		buf = appendString(buf, m.ErrorMessage)
		return buf, nil
	}
	body, err := artifact.Encode(m.Chain)
	if err != nil {
		return nil, fmt.Errorf("encode chain bundle: %w", err)
	}
	buf := []byte{byte(KindChain)}
	buf = appendBytes(buf, body)
	return buf, nil
}

// DecodeResponse deserializes a ServerToClient message.
func DecodeResponse(data []byte) (ServerToClient, error) {
	if len(data) == 0 {
		return ServerToClient{}, fmt.Errorf("decode response: empty message")
	}
	switch MessageKind(data[0]) {
	case KindChain:
		body, _, err := readBytes(data[1:])
		if err != nil {
			return ServerToClient{}, fmt.Errorf("decode response chain body: %w", err)
		}
		bundle, err := artifact.Decode(body)
		if err != nil {
			return ServerToClient{}, fmt.Errorf("decode response chain bundle: %w", err)
		}
		return ServerToClient{Chain: bundle}, nil
	case KindRequestChainError:
		msg, _, err := readString(data[1:])
		if err != nil {
			return ServerToClient{}, fmt.Errorf("decode response error message: %w", err)
		}
		return ServerToClient{ErrorMessage: msg}, nil
	default:
		return ServerToClient{}, fmt.Errorf("decode response: bad message kind %d", data[0])
	}
}

func appendBytes(buf, v []byte) []byte {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(v)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, v...)
}

func appendString(buf []byte, s string) []byte {
	return appendBytes(buf, []byte(s))
}

func readBytes(data []byte) (v []byte, rest []byte, err error) {
	if len(data) < 4 {
		return nil, nil, fmt.Errorf("short length prefix")
	}
	n := binary.BigEndian.Uint32(data[:4])
	data = data[4:]
	if uint32(len(data)) < n {
		return nil, nil, fmt.Errorf("short body: want %d have %d", n, len(data))
	}
	return data[:n], data[n:], nil
}

func readString(data []byte) (string, []byte, error) {
	b, rest, err := readBytes(data)
	return string(b), rest, err
}

// Transport is the seam between the message layer above and a concrete
// framing/auth implementation below (plain TCP here; TLS/WebSocket in a
// real deployment). Recv returns exactly what was Send, unparsed.
type Transport interface {
	Send(frame []byte) error
	Recv() ([]byte, error)
	Close() error
}

// TCPTransport is a length-prefixed framing over a plain net.Conn,
// the one concrete Transport this module provides.
type TCPTransport struct {
	rw io.ReadWriteCloser
}

// NewTCPTransport wraps an already-connected or already-accepted
// connection.
func NewTCPTransport(rw io.ReadWriteCloser) *TCPTransport {
	return &TCPTransport{rw: rw}
}

func (t *TCPTransport) Send(frame []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(frame)))
	if _, err := t.rw.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("send frame length: %w", err)
	}
	if _, err := t.rw.Write(frame); err != nil {
		return fmt.Errorf("send frame body: %w", err)
	}
	return nil
}

func (t *TCPTransport) Recv() ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(t.rw, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("recv frame length: %w", err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	body := make([]byte, n)
	if _, err := io.ReadFull(t.rw, body); err != nil {
		return nil, fmt.Errorf("recv frame body: %w", err)
	}
	return body, nil
}

func (t *TCPTransport) Close() error { return t.rw.Close() }
