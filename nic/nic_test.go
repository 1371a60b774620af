package nic

import (
	"bytes"
	"testing"
)

func TestTxBurstRxBurstRoundTrip(t *testing.T) {
	d := NewSimDriver()
	pkts := []Packet{
		{Data: []byte("first"), LaunchNs: 100},
		{Data: []byte("second"), LaunchNs: 200},
	}
	accepted, err := d.TxBurst(0, pkts)
	if err != nil {
		t.Fatalf("TxBurst: %v", err)
	}
	if accepted != len(pkts) {
		t.Fatalf("accepted = %d, want %d", accepted, len(pkts))
	}

	got, err := d.RxBurst(0, 10)
	if err != nil {
		t.Fatalf("RxBurst: %v", err)
	}
	if len(got) != len(pkts) {
		t.Fatalf("RxBurst returned %d packets, want %d", len(got), len(pkts))
	}
	for i, p := range got {
		if !bytes.Equal(p.Data, pkts[i].Data) || p.LaunchNs != pkts[i].LaunchNs {
			t.Errorf("packet %d = %+v, want %+v", i, p, pkts[i])
		}
	}
}

func TestRxBurstNonBlockingWhenEmpty(t *testing.T) {
	d := NewSimDriver()
	got, err := d.RxBurst(0, 10)
	if err != nil {
		t.Fatalf("RxBurst: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("RxBurst on empty queue returned %d packets, want 0", len(got))
	}
}

func TestTxBurstStopsAcceptingPastQueueDepth(t *testing.T) {
	d := NewSimDriver()
	// Prime the queue at its default depth (256) by sending more than fits
	// in one burst without an intervening RxBurst drain.
	var pkts []Packet
	for i := 0; i < 300; i++ {
		pkts = append(pkts, Packet{Data: []byte{byte(i)}})
	}
	accepted, err := d.TxBurst(0, pkts)
	if err != nil {
		t.Fatalf("TxBurst: %v", err)
	}
	if accepted != 256 {
		t.Fatalf("accepted = %d, want 256 (queue depth)", accepted)
	}
}

func TestQueuesAreIndependent(t *testing.T) {
	d := NewSimDriver()
	if _, err := d.TxBurst(0, []Packet{{Data: []byte("q0")}}); err != nil {
		t.Fatalf("TxBurst queue 0: %v", err)
	}
	got, err := d.RxBurst(1, 10)
	if err != nil {
		t.Fatalf("RxBurst queue 1: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("queue 1 saw %d packets meant for queue 0", len(got))
	}
}

func TestRegisterMemIsStableAndUnregisterRemoves(t *testing.T) {
	d := NewSimDriver()
	buf := make([]byte, 64)

	iova1, err := d.RegisterMem(buf)
	if err != nil {
		t.Fatalf("RegisterMem: %v", err)
	}
	iova2, err := d.RegisterMem(buf)
	if err != nil {
		t.Fatalf("RegisterMem (2nd): %v", err)
	}
	if iova1 != iova2 {
		t.Fatalf("re-registering the same buffer returned different iovas: %d vs %d", iova1, iova2)
	}

	if err := d.UnregisterMem(iova1); err != nil {
		t.Fatalf("UnregisterMem: %v", err)
	}
	if err := d.UnregisterMem(iova1); err == nil {
		t.Fatal("expected an error unregistering an already-removed mapping")
	}
}

func TestRegisterMemRejectsEmptyBuffer(t *testing.T) {
	d := NewSimDriver()
	if _, err := d.RegisterMem(nil); err == nil {
		t.Fatal("expected an error registering a nil buffer")
	}
}
