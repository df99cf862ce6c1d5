package sphinxcodec

import "testing"

func TestReplayFilterRejectsSecondOccurrence(t *testing.T) {
	f := NewReplayFilter(1000, 1e-6, [16]byte{1}, [16]byte{2})

	var tag PacketTag
	tag[0] = 0x42

	if f.CheckAndSet(tag) {
		t.Fatal("first occurrence must not be reported as a replay")
	}
	if !f.CheckAndSet(tag) {
		t.Fatal("second occurrence must be reported as a replay")
	}
}

func TestReplayFilterDistinguishesTags(t *testing.T) {
	f := NewReplayFilter(1000, 1e-6, [16]byte{1}, [16]byte{2})

	var a, b PacketTag
	a[0] = 1
	b[0] = 2

	if f.CheckAndSet(a) {
		t.Fatal("tag a must not start out seen")
	}
	if f.CheckAndSet(b) {
		t.Fatal("tag b must not start out seen just because a was set")
	}
}

func TestHopPayloadRoundTrip(t *testing.T) {
	ticketBytes := make([]byte, HopPayloadSize-hopPayloadPositionBytes)
	for i := range ticketBytes {
		ticketBytes[i] = byte(i)
	}

	p := HopPayload{Ticket: ticketBytes, PathPosition: 3}
	raw, err := EncodeHopPayload(p)
	if err != nil {
		t.Fatal(err)
	}

	got, err := DecodeHopPayload(raw)
	if err != nil {
		t.Fatal(err)
	}
	if got.PathPosition != 3 {
		t.Fatalf("path position = %d, want 3", got.PathPosition)
	}
	if string(got.Ticket) != string(ticketBytes) {
		t.Fatal("ticket bytes did not round-trip")
	}
}

func TestEncodeHopPayloadRejectsWrongTicketSize(t *testing.T) {
	_, err := EncodeHopPayload(HopPayload{Ticket: []byte{1, 2, 3}})
	if err == nil {
		t.Fatal("expected error for undersized ticket")
	}
}
