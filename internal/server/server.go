// Package server runs the lock-step request/reply loop over a ZeroMQ REP socket.
//
// The loop is strictly synchronous: receive one request, fully process it,
// send exactly one reply, repeat. There are no in-flight requests, no
// background work, and no timeout on the wait for the next request. The
// scaler and model are constructed once at startup and only ever read,
// which keeps a later move to a worker pool safe.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/rs/zerolog"

	"github.com/THA011/AI-meta4/internal/candle"
	"github.com/THA011/AI-meta4/internal/decision"
	"github.com/THA011/AI-meta4/internal/feature"
	"github.com/THA011/AI-meta4/internal/metrics"
	"github.com/THA011/AI-meta4/internal/protocol"
	"github.com/THA011/AI-meta4/internal/risk"
)

// Transformer standardizes a feature vector with training-time statistics.
type Transformer interface {
	Transform(feature.Vector) (feature.Vector, error)
}

// Predictor maps a standardized feature vector to an up-move probability.
type Predictor interface {
	PredictProba(feature.Vector) (float64, error)
}

// errNumericData marks failures caused by uncoercible or non-finite input values.
var errNumericData = errors.New("bad numeric data")

// Server drives the request pipeline with shared read-only model state.
type Server struct {
	transformer Transformer
	predictor   Predictor
	policy      *decision.Policy
	log         zerolog.Logger
	now         func() time.Time
}

// New wires the pipeline collaborators together.
func New(transformer Transformer, predictor Predictor, policy *decision.Policy, log zerolog.Logger) *Server {
	return &Server{
		transformer: transformer,
		predictor:   predictor,
		policy:      policy,
		log:         log,
		now:         time.Now,
	}
}

// Run binds the REP socket and serves until the context is canceled.
func (s *Server) Run(ctx context.Context, endpoint string) error {
	socket := zmq4.NewRep(ctx)
	defer socket.Close()

	if err := socket.Listen(endpoint); err != nil {
		return fmt.Errorf("listen %s: %w", endpoint, err)
	}
	s.log.Info().Str("endpoint", endpoint).Msg("server listening")

	for {
		msg, err := socket.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("recv: %w", err)
		}
		reply := s.Handle(msg.Bytes())
		if err := socket.Send(zmq4.NewMsg(reply)); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("send: %w", err)
		}
	}
}

// Handle maps one raw request frame to exactly one reply frame. Every
// pipeline failure is converted to a complete error payload here; nothing
// below this boundary terminates the loop.
func (s *Server) Handle(raw []byte) []byte {
	req, err := protocol.Parse(raw)
	if err != nil {
		return s.failure("unknown", err)
	}

	if req.Type == protocol.TypePing {
		metrics.RequestsTotal.WithLabelValues(protocol.TypePing, "ok").Inc()
		return mustMarshal(protocol.PingAck{Status: "ok", TS: s.now().Unix()})
	}

	pred, err := s.predict(req.Candles)
	if err != nil {
		return s.failure(protocol.TypePredict, err)
	}
	metrics.RequestsTotal.WithLabelValues(protocol.TypePredict, "ok").Inc()
	metrics.PredictionsTotal.WithLabelValues(pred.Action).Inc()
	s.log.Info().
		Str("action", pred.Action).
		Float64("confidence", pred.Confidence).
		Int("stop_pips", pred.StopPips).
		Int("tp_pips", pred.TPPips).
		Msg("served prediction")
	return mustMarshal(pred)
}

func (s *Server) predict(records []candle.Record) (protocol.Prediction, error) {
	series, err := candle.ParseRecords(records)
	if err != nil {
		return protocol.Prediction{}, err
	}

	rows := feature.Compute(series.Closes())
	vector, err := feature.LastValid(rows)
	if err != nil {
		if series.HasMissing() {
			return protocol.Prediction{}, fmt.Errorf("%w: non-finite candle fields left no valid feature rows", errNumericData)
		}
		return protocol.Prediction{}, err
	}

	scaled, err := s.transformer.Transform(vector)
	if err != nil {
		return protocol.Prediction{}, fmt.Errorf("scaler transform: %w", err)
	}
	prob, err := s.predictor.PredictProba(scaled)
	if err != nil {
		return protocol.Prediction{}, fmt.Errorf("model predict: %w", err)
	}
	action := s.policy.Decide(prob)

	sizing, err := risk.Size(series)
	if err != nil {
		return protocol.Prediction{}, err
	}

	return protocol.Prediction{
		Action:     string(action),
		Confidence: prob,
		StopPips:   sizing.StopPips,
		TPPips:     sizing.TPPips,
	}, nil
}

func (s *Server) failure(reqType string, err error) []byte {
	status := classify(err)
	metrics.RequestsTotal.WithLabelValues(reqType, status).Inc()
	s.log.Warn().Err(err).Str("type", reqType).Str("status", status).Msg("request failed")
	return mustMarshal(protocol.Failure{Error: err.Error()})
}

// classify labels a failure with its taxonomy bucket for logging and metrics.
func classify(err error) string {
	switch {
	case errors.Is(err, protocol.ErrParse):
		return "parse"
	case errors.Is(err, protocol.ErrValidation):
		return "validation"
	case errors.Is(err, candle.ErrInsufficientData),
		errors.Is(err, risk.ErrInsufficientData),
		errors.Is(err, feature.ErrNoValidRows):
		return "insufficient_data"
	case errors.Is(err, errNumericData), errors.Is(err, risk.ErrBadRange):
		return "numeric"
	default:
		return "model"
	}
}

func mustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		// All reply types marshal unconditionally; this indicates a programming error.
		panic(err)
	}
	return data
}
