package connlayer

import (
	"bytes"
	"testing"

	"github.com/aytixel/dwitch/internal/protocol"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	pkt := protocol.DataPacket{VrfID: 7, Data: []byte("hello")}

	if err := writeFrame(&buf, pkt); err != nil {
		t.Fatalf("writeFrame: %v", err)
	}

	got, err := readFrame(&buf)
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	data, ok := got.(protocol.DataPacket)
	if !ok || data.VrfID != 7 || string(data.Data) != "hello" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestFrameMultiplePackets(t *testing.T) {
	var buf bytes.Buffer
	writeFrame(&buf, protocol.PingPacket{})
	writeFrame(&buf, protocol.DataPacket{VrfID: 1, Data: []byte("x")})

	first, err := readFrame(&buf)
	if err != nil {
		t.Fatalf("first readFrame: %v", err)
	}
	if _, ok := first.(protocol.PingPacket); !ok {
		t.Fatalf("expected PingPacket, got %+v", first)
	}

	second, err := readFrame(&buf)
	if err != nil {
		t.Fatalf("second readFrame: %v", err)
	}
	if _, ok := second.(protocol.DataPacket); !ok {
		t.Fatalf("expected DataPacket, got %+v", second)
	}
}

func TestReadFrameTruncated(t *testing.T) {
	var buf bytes.Buffer
	writeFrame(&buf, protocol.DataPacket{VrfID: 1, Data: []byte("payload")})

	truncated := bytes.NewReader(buf.Bytes()[:6])
	if _, err := readFrame(truncated); err == nil {
		t.Fatal("expected error on truncated frame")
	}
}

func TestReadFrameOversizedLength(t *testing.T) {
	var hdr [4]byte
	hdr[0], hdr[1], hdr[2], hdr[3] = 0xff, 0xff, 0xff, 0xff
	r := bytes.NewReader(hdr[:])
	if _, err := readFrame(r); err == nil {
		t.Fatal("expected error on oversized frame length")
	}
}
