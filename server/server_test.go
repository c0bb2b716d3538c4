package server

import (
	"errors"
	"testing"
	"time"

	"kvbridge/backend"
	"kvbridge/envelope"
	"kvbridge/transport"
)

// startDispatcher serves the given dispatcher over an in-process pipe and
// returns the client's end after consuming the ready announcement.
func startDispatcher(t *testing.T, d *Dispatcher, clientOrigin string) transport.Conn {
	t.Helper()
	clientConn, hubConn := transport.Pipe(clientOrigin, "wss://hub.example")
	go d.Serve(hubConn)
	t.Cleanup(func() { clientConn.Close() })

	env := recvEnvelope(t, clientConn)
	if env.Action != envelope.ActionReady {
		t.Fatalf("first message should be the ready announcement, got %+v", env)
	}
	return clientConn
}

func recvEnvelope(t *testing.T, c transport.Conn) *envelope.Envelope {
	t.Helper()
	select {
	case msg, ok := <-c.Recv():
		if !ok {
			t.Fatal("pipe closed")
		}
		env, err := envelope.Decode(msg.Data)
		if err != nil {
			t.Fatalf("malformed response: %v", err)
		}
		return env
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for response")
	}
	return nil
}

func sendEnvelope(t *testing.T, c transport.Conn, env *envelope.Envelope) {
	t.Helper()
	data, err := env.Encode()
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Send(data); err != nil {
		t.Fatal(err)
	}
}

func expectSilence(t *testing.T, c transport.Conn) {
	t.Helper()
	select {
	case msg := <-c.Recv():
		t.Fatalf("expected no response, got %s", msg.Data)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDispatcherHandlesStorageActions(t *testing.T) {
	d := NewDispatcher(backend.NewMemory())
	conn := startDispatcher(t, d, "https://app.example")

	// setItem
	sendEnvelope(t, conn, &envelope.Envelope{Action: envelope.ActionSetItem, Ref: "r1", Key: "a", Value: "1"})
	resp := recvEnvelope(t, conn)
	if resp.Action != envelope.ActionSuccess || resp.Ref != "r1" {
		t.Fatalf("setItem response: %+v", resp)
	}

	sendEnvelope(t, conn, &envelope.Envelope{Action: envelope.ActionSetItem, Ref: "r2", Key: "b", Value: "2"})
	recvEnvelope(t, conn)

	// getItem hit
	sendEnvelope(t, conn, &envelope.Envelope{Action: envelope.ActionGetItem, Ref: "r3", Key: "a"})
	resp = recvEnvelope(t, conn)
	if resp.Ref != "r3" || resp.Value != "1" {
		t.Errorf("getItem response: %+v", resp)
	}

	// getItem miss yields a success with a null value
	sendEnvelope(t, conn, &envelope.Envelope{Action: envelope.ActionGetItem, Ref: "r4", Key: "zz"})
	resp = recvEnvelope(t, conn)
	if resp.Action != envelope.ActionSuccess || resp.Value != nil {
		t.Errorf("getItem miss response: %+v", resp)
	}

	// length
	sendEnvelope(t, conn, &envelope.Envelope{Action: envelope.ActionLength, Ref: "r5"})
	resp = recvEnvelope(t, conn)
	if resp.Value != float64(2) {
		t.Errorf("length response value: %#v, want 2", resp.Value)
	}

	// key by index, in insertion order
	sendEnvelope(t, conn, &envelope.Envelope{Action: envelope.ActionKey, Ref: "r6", Value: float64(0)})
	resp = recvEnvelope(t, conn)
	if resp.Value != "a" {
		t.Errorf("key(0) = %#v, want a", resp.Value)
	}

	// key out of range yields a success with a null value
	sendEnvelope(t, conn, &envelope.Envelope{Action: envelope.ActionKey, Ref: "r7", Value: float64(5)})
	resp = recvEnvelope(t, conn)
	if resp.Action != envelope.ActionSuccess || resp.Value != nil {
		t.Errorf("key(5) response: %+v", resp)
	}

	// removeItem then clear
	sendEnvelope(t, conn, &envelope.Envelope{Action: envelope.ActionRemoveItem, Ref: "r8", Key: "a"})
	recvEnvelope(t, conn)
	sendEnvelope(t, conn, &envelope.Envelope{Action: envelope.ActionClear, Ref: "r9"})
	recvEnvelope(t, conn)
	sendEnvelope(t, conn, &envelope.Envelope{Action: envelope.ActionLength, Ref: "r10"})
	resp = recvEnvelope(t, conn)
	if resp.Value != float64(0) {
		t.Errorf("length after clear: %#v", resp.Value)
	}
}

func TestDispatcherRejectsWrongOrigin(t *testing.T) {
	d := NewDispatcher(backend.NewMemory(), WithExpectedOrigin("https://trusted.example"))
	conn := startDispatcher(t, d, "https://evil.example")

	sendEnvelope(t, conn, &envelope.Envelope{Action: envelope.ActionGetItem, Ref: "r1", Key: "a"})
	expectSilence(t, conn)
}

func TestDispatcherAcceptsExpectedOrigin(t *testing.T) {
	d := NewDispatcher(backend.NewMemory(), WithExpectedOrigin("https://trusted.example"))
	conn := startDispatcher(t, d, "https://trusted.example")

	sendEnvelope(t, conn, &envelope.Envelope{Action: envelope.ActionLength, Ref: "r1"})
	resp := recvEnvelope(t, conn)
	if resp.Action != envelope.ActionSuccess {
		t.Fatalf("expected success from trusted origin, got %+v", resp)
	}
}

func TestDispatcherDropsUnknownActionAndMalformed(t *testing.T) {
	d := NewDispatcher(backend.NewMemory())
	conn := startDispatcher(t, d, "https://app.example")

	if err := conn.Send("{broken json"); err != nil {
		t.Fatal(err)
	}
	sendEnvelope(t, conn, &envelope.Envelope{Action: "format", Ref: "r1"})
	expectSilence(t, conn)

	// The loop survived both: a valid request still gets served.
	sendEnvelope(t, conn, &envelope.Envelope{Action: envelope.ActionLength, Ref: "r2"})
	resp := recvEnvelope(t, conn)
	if resp.Ref != "r2" {
		t.Fatalf("dispatcher did not survive bad input: %+v", resp)
	}
}

// failingBackend errors on every operation; panicky panics on Get.
type failingBackend struct{ backend.Memory }

func (f *failingBackend) Set(string, any) error { return errors.New("disk full") }

type panickyBackend struct{ backend.Memory }

func (p *panickyBackend) Get(string) (any, error) { panic("backend exploded") }

func TestBackendErrorBecomesErrorEnvelope(t *testing.T) {
	d := NewDispatcher(&failingBackend{})
	conn := startDispatcher(t, d, "https://app.example")

	sendEnvelope(t, conn, &envelope.Envelope{Action: envelope.ActionSetItem, Ref: "r1", Key: "k", Value: "v"})
	resp := recvEnvelope(t, conn)
	if resp.Action != envelope.ActionError || resp.Ref != "r1" || resp.Message != "disk full" {
		t.Fatalf("expected disk full error envelope, got %+v", resp)
	}
}

func TestBackendPanicBecomesErrorEnvelope(t *testing.T) {
	d := NewDispatcher(&panickyBackend{})
	conn := startDispatcher(t, d, "https://app.example")

	sendEnvelope(t, conn, &envelope.Envelope{Action: envelope.ActionGetItem, Ref: "r1", Key: "k"})
	resp := recvEnvelope(t, conn)
	if resp.Action != envelope.ActionError || resp.Ref != "r1" {
		t.Fatalf("expected error envelope from panic, got %+v", resp)
	}

	// The serve loop survived the panic.
	sendEnvelope(t, conn, &envelope.Envelope{Action: envelope.ActionLength, Ref: "r2"})
	resp = recvEnvelope(t, conn)
	if resp.Ref != "r2" {
		t.Fatalf("dispatcher did not survive the panic: %+v", resp)
	}
}

func TestKeyWithNonNumericIndex(t *testing.T) {
	d := NewDispatcher(backend.NewMemory())
	conn := startDispatcher(t, d, "https://app.example")

	sendEnvelope(t, conn, &envelope.Envelope{Action: envelope.ActionKey, Ref: "r1", Value: "zero"})
	resp := recvEnvelope(t, conn)
	if resp.Action != envelope.ActionError {
		t.Fatalf("expected error for non-numeric index, got %+v", resp)
	}
}
