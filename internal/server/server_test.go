package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/THA011/AI-meta4/internal/artifact"
	"github.com/THA011/AI-meta4/internal/decision"
	"github.com/THA011/AI-meta4/internal/feature"
	"github.com/THA011/AI-meta4/internal/protocol"
)

// identityScaler leaves features untouched so test model weights act on raw values.
func identityScaler() *artifact.Scaler {
	return &artifact.Scaler{
		SchemaVersion: feature.SchemaVersion,
		Features:      feature.Names,
		Mean:          []float64{0, 0, 0, 0, 0, 0},
		Std:           []float64{1, 1, 1, 1, 1, 1},
	}
}

// ret1Model reacts only to the one-bar return, strongly enough that a steady
// 1% drift saturates the sigmoid well past the decision threshold.
func ret1Model() *artifact.Model {
	return &artifact.Model{
		SchemaVersion: feature.SchemaVersion,
		Features:      feature.Names,
		Weights:       []float64{500, 0, 0, 0, 0, 0},
		Bias:          0,
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	policy, err := decision.NewPolicy(0.56)
	if err != nil {
		t.Fatalf("NewPolicy returned error: %v", err)
	}
	srv := New(identityScaler(), ret1Model(), policy, zerolog.Nop())
	srv.now = func() time.Time { return time.Unix(1700000000, 0) }
	return srv
}

// driftCandles builds n bars whose closes move by a constant ratio per bar,
// highs and lows bracketing the closes. ratio > 1 trends up, < 1 trends down.
func driftCandles(n int, ratio float64) []map[string]any {
	candles := make([]map[string]any, n)
	px := 1.1000
	for i := range candles {
		next := px * ratio
		candles[i] = map[string]any{
			"datetime": fmt.Sprintf("2024-03-01 10:%02d:00", i),
			"open":     px,
			"high":     max(px, next) + 0.0002,
			"low":      min(px, next) - 0.0002,
			"close":    next,
			"volume":   25,
		}
		px = next
	}
	return candles
}

func predictPayload(t *testing.T, candles []map[string]any) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"type": "predict", "candles": candles})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return raw
}

func decodePrediction(t *testing.T, reply []byte) protocol.Prediction {
	t.Helper()
	var failure protocol.Failure
	if err := json.Unmarshal(reply, &failure); err == nil && failure.Error != "" {
		t.Fatalf("expected prediction, got error reply: %s", failure.Error)
	}
	var pred protocol.Prediction
	if err := json.Unmarshal(reply, &pred); err != nil {
		t.Fatalf("decode prediction: %v", err)
	}
	return pred
}

func decodeFailure(t *testing.T, reply []byte) string {
	t.Helper()
	var failure protocol.Failure
	if err := json.Unmarshal(reply, &failure); err != nil {
		t.Fatalf("decode failure: %v", err)
	}
	if failure.Error == "" {
		t.Fatalf("expected error reply, got %s", reply)
	}
	return failure.Error
}

func TestHandlePing(t *testing.T) {
	srv := newTestServer(t)
	reply := srv.Handle([]byte(`{"type":"ping"}`))
	want := `{"status":"ok","ts":1700000000}`
	if string(reply) != want {
		t.Fatalf("unexpected ping reply: %s", reply)
	}
}

func TestHandlePingAfterPredict(t *testing.T) {
	srv := newTestServer(t)
	_ = srv.Handle(predictPayload(t, driftCandles(50, 1.01)))
	reply := srv.Handle([]byte(`{"type":"ping"}`))
	var ack protocol.PingAck
	if err := json.Unmarshal(reply, &ack); err != nil {
		t.Fatalf("decode ping ack: %v", err)
	}
	if ack.Status != "ok" || ack.TS != 1700000000 {
		t.Fatalf("unexpected ack after predict: %+v", ack)
	}
}

func TestHandleMalformedPayload(t *testing.T) {
	srv := newTestServer(t)
	msg := decodeFailure(t, srv.Handle([]byte(`{"type":`)))
	if !strings.Contains(msg, "malformed request") {
		t.Fatalf("unexpected error message: %s", msg)
	}
}

func TestHandleUnknownType(t *testing.T) {
	srv := newTestServer(t)
	msg := decodeFailure(t, srv.Handle([]byte(`{"type":"forecast"}`)))
	if !strings.Contains(msg, "unknown type") {
		t.Fatalf("unexpected error message: %s", msg)
	}
}

func TestHandlePredictWithoutCandles(t *testing.T) {
	srv := newTestServer(t)
	msg := decodeFailure(t, srv.Handle([]byte(`{"type":"predict"}`)))
	if !strings.Contains(msg, "without candles") {
		t.Fatalf("unexpected error message: %s", msg)
	}
}

func TestHandleShortHistory(t *testing.T) {
	srv := newTestServer(t)
	msg := decodeFailure(t, srv.Handle(predictPayload(t, driftCandles(10, 1.01))))
	if !strings.Contains(msg, "insufficient candle history") {
		t.Fatalf("unexpected error message: %s", msg)
	}
}

func TestHandleUncoercibleCloses(t *testing.T) {
	srv := newTestServer(t)
	candles := driftCandles(20, 1.01)
	for _, c := range candles {
		c["close"] = "n/a"
	}
	msg := decodeFailure(t, srv.Handle(predictPayload(t, candles)))
	if !strings.Contains(msg, "non-finite candle fields") {
		t.Fatalf("unexpected error message: %s", msg)
	}
}

func TestHandleBuyOnUptrend(t *testing.T) {
	srv := newTestServer(t)
	pred := decodePrediction(t, srv.Handle(predictPayload(t, driftCandles(50, 1.01))))
	if pred.Action != "BUY" {
		t.Fatalf("expected BUY on a steady uptrend, got %s", pred.Action)
	}
	if pred.Confidence < 0.56 || pred.Confidence > 1 {
		t.Fatalf("unexpected confidence: %v", pred.Confidence)
	}
	if pred.StopPips < 10 || pred.TPPips < pred.StopPips+20 {
		t.Fatalf("risk invariants violated: %+v", pred)
	}
}

func TestHandleSellOnDowntrend(t *testing.T) {
	srv := newTestServer(t)
	pred := decodePrediction(t, srv.Handle(predictPayload(t, driftCandles(50, 0.99))))
	if pred.Action != "SELL" {
		t.Fatalf("expected SELL on a steady downtrend, got %s", pred.Action)
	}
	if pred.Confidence > 0.44 || pred.Confidence < 0 {
		t.Fatalf("unexpected confidence: %v", pred.Confidence)
	}
}

func TestHandleHoldInsideBand(t *testing.T) {
	policy, err := decision.NewPolicy(0.56)
	if err != nil {
		t.Fatalf("NewPolicy returned error: %v", err)
	}
	// Zero weights pin the probability at exactly 0.5, inside the band.
	model := &artifact.Model{
		SchemaVersion: feature.SchemaVersion,
		Features:      feature.Names,
		Weights:       []float64{0, 0, 0, 0, 0, 0},
	}
	srv := New(identityScaler(), model, policy, zerolog.Nop())
	pred := decodePrediction(t, srv.Handle(predictPayload(t, driftCandles(50, 1.01))))
	if pred.Action != "HOLD" {
		t.Fatalf("expected HOLD at p=0.5, got %s", pred.Action)
	}
	if pred.Confidence != 0.5 {
		t.Fatalf("expected raw probability 0.5 as confidence, got %v", pred.Confidence)
	}
}

func TestHandleDeterminism(t *testing.T) {
	srv := newTestServer(t)
	payload := predictPayload(t, driftCandles(50, 1.01))
	first := srv.Handle(payload)
	second := srv.Handle(payload)
	if !bytes.Equal(first, second) {
		t.Fatalf("identical requests produced different replies:\n%s\n%s", first, second)
	}
}

func TestHandleModelFailure(t *testing.T) {
	policy, err := decision.NewPolicy(0.56)
	if err != nil {
		t.Fatalf("NewPolicy returned error: %v", err)
	}
	srv := New(identityScaler(), failingPredictor{}, policy, zerolog.Nop())
	msg := decodeFailure(t, srv.Handle(predictPayload(t, driftCandles(50, 1.01))))
	if !strings.Contains(msg, "model predict") {
		t.Fatalf("unexpected error message: %s", msg)
	}
}

type failingPredictor struct{}

func (failingPredictor) PredictProba(feature.Vector) (float64, error) {
	return 0, fmt.Errorf("booster unavailable")
}
