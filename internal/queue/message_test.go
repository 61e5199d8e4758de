package queue

import (
	"context"
	"reflect"
	"testing"
)

func TestMessageRoundTrip(t *testing.T) {
	msg := Message{
		Event:      EventReportReady,
		AnalysisID: 42,
		Owner:      "owner-hash",
		RequestID:  "request-456",
		EnqueuedAt: "2026-01-30T22:00:00Z",
		Version:    MessageVersion,
	}

	payload, err := EncodeMessage(msg)
	if err != nil {
		t.Fatalf("encode message: %v", err)
	}
	got, err := DecodeMessage(payload)
	if err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if !reflect.DeepEqual(got, msg) {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, msg)
	}
}

func TestDecodeMessageRejectsFutureVersion(t *testing.T) {
	if _, err := DecodeMessage([]byte(`{"event":"report.ready","analysisId":1,"version":9}`)); err == nil {
		t.Fatalf("expected version error")
	}
}

func TestMemoryClient(t *testing.T) {
	c := &MemoryClient{}
	if err := c.Send(context.Background(), Message{Event: EventReportReady, AnalysisID: 1}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Send(ctx, Message{AnalysisID: 2}); err == nil {
		t.Fatalf("expected error on cancelled context")
	}
	msgs := c.Messages()
	if len(msgs) != 1 || msgs[0].AnalysisID != 1 {
		t.Fatalf("unexpected messages %+v", msgs)
	}
}
