// Package protocol defines the JSON request and reply shapes spoken over the REP socket.
//
// Each request is a single JSON object and each reply is a single JSON
// object; the transport alternates strictly between the two. Replies are
// always complete: a request yields either a full success payload or a full
// error payload, never a mix.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/THA011/AI-meta4/internal/candle"
)

// Request types accepted on the wire.
const (
	TypePing    = "ping"
	TypePredict = "predict"
)

var (
	// ErrParse reports a payload that is not a well-formed request object.
	ErrParse = errors.New("malformed request")
	// ErrValidation reports a well-formed request with unacceptable content.
	ErrValidation = errors.New("invalid request")
)

// Request is the envelope every client message decodes into.
type Request struct {
	Type    string          `json:"type"`
	Candles []candle.Record `json:"candles"`
}

// Parse decodes and shape-checks one raw request frame.
func Parse(raw []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	switch req.Type {
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrParse)
	case TypePing:
		return &req, nil
	case TypePredict:
		if req.Candles == nil {
			return nil, fmt.Errorf("%w: predict without candles", ErrValidation)
		}
		return &req, nil
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrValidation, req.Type)
	}
}

// PingAck acknowledges a ping with the current server time.
type PingAck struct {
	Status string `json:"status"`
	TS     int64  `json:"ts"`
}

// Prediction is the successful predict reply.
type Prediction struct {
	Action     string  `json:"action"`
	Confidence float64 `json:"confidence"`
	StopPips   int     `json:"stop_pips"`
	TPPips     int     `json:"tp_pips"`
}

// Failure is the reply for any request that could not be served.
type Failure struct {
	Error string `json:"error"`
}
