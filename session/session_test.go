package session_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/pion/rtp"

	"github.com/smpte2110/mtl-core/convert"
	"github.com/smpte2110/mtl-core/nic"
	"github.com/smpte2110/mtl-core/pixfmt"
	"github.com/smpte2110/mtl-core/pacing"
	"github.com/smpte2110/mtl-core/ptp"
	"github.com/smpte2110/mtl-core/rfc4175"
	"github.com/smpte2110/mtl-core/session"
)

func TestTXToRXEndToEnd(t *testing.T) {
	geo := rfc4175.Geometry{Width: 8, Height: 2, Wire: pixfmt.RFC4175_422_10_PG2_BE}
	total, err := geo.TotalBytes()
	if err != nil {
		t.Fatalf("TotalBytes: %v", err)
	}

	reg := convert.NewRegistry()
	nicDrv := nic.NewSimDriver()
	ptpSrc := ptp.NewSystemClock()

	convReq := convert.Request{Input: pixfmt.RFC4175_422_10_PG2_BE, Output: pixfmt.RFC4175_422_10_PG2_BE, Width: geo.Width, Height: geo.Height}

	txCfg := session.TXConfig{
		RingCapacity: 2, Geo: geo, Mode: rfc4175.SingleLine, MTU: 1460,
		PayloadType: 112, SSRC: 1, ConvertReq: convReq,
		Pacing: pacing.Config{FPS: 50, Profile: pacing.WideProfile},
		Queue:  0,
	}
	tx, err := session.NewTXSession("tx1", txCfg, reg, nicDrv, ptpSrc, session.Callbacks{})
	if err != nil {
		t.Fatalf("NewTXSession: %v", err)
	}
	if err := tx.Start(); err != nil {
		t.Fatalf("tx.Start: %v", err)
	}

	slot, err := tx.GetFrame(0)
	if err != nil {
		t.Fatalf("tx.GetFrame: %v", err)
	}
	src := make([]byte, total)
	for i := range src {
		src[i] = byte(i*3 + 1)
	}
	slot.Frame.Planes[0] = src
	slot.Frame.DataSize = total
	if err := tx.PutFrame(slot); err != nil {
		t.Fatalf("tx.PutFrame: %v", err)
	}
	if err := tx.Tick(); err != nil {
		t.Fatalf("tx.Tick: %v", err)
	}

	rxCfg := session.RXConfig{
		RingCapacity: 2, Geo: geo, Mode: rfc4175.SingleLine, MTU: 1460,
		MaxInFlight: 2, ConvertReq: convReq,
	}
	rx, err := session.NewRXSession("rx1", rxCfg, reg, session.Callbacks{})
	if err != nil {
		t.Fatalf("NewRXSession: %v", err)
	}
	if err := rx.Start(); err != nil {
		t.Fatalf("rx.Start: %v", err)
	}

	raw, err := nicDrv.RxBurst(0, 100)
	if err != nil {
		t.Fatalf("RxBurst: %v", err)
	}
	if len(raw) == 0 {
		t.Fatal("no packets arrived at the simulated NIC queue")
	}
	for _, p := range raw {
		var pkt rtp.Packet
		if err := pkt.Unmarshal(p.Data); err != nil {
			t.Fatalf("Unmarshal: %v", err)
		}
		if err := rx.IngestPacket(reg, &pkt, 0, uint64(time.Now().UnixNano())); err != nil {
			t.Fatalf("IngestPacket: %v", err)
		}
	}

	rxSlot, err := rx.GetFrame(0)
	if err != nil {
		t.Fatalf("rx.GetFrame: %v", err)
	}
	if !bytes.Equal(rxSlot.Frame.Planes[0][:rxSlot.Frame.DataSize], src) {
		t.Fatal("received frame bytes do not match transmitted bytes")
	}
	if err := rx.PutFrame(rxSlot); err != nil {
		t.Fatalf("rx.PutFrame: %v", err)
	}
}

func TestTXStopWhileBlockedReturnsTryAgain(t *testing.T) {
	geo := rfc4175.Geometry{Width: 8, Height: 2, Wire: pixfmt.RFC4175_422_10_PG2_BE}
	reg := convert.NewRegistry()
	nicDrv := nic.NewSimDriver()
	ptpSrc := ptp.NewSystemClock()
	convReq := convert.Request{Input: pixfmt.RFC4175_422_10_PG2_BE, Output: pixfmt.RFC4175_422_10_PG2_BE, Width: geo.Width, Height: geo.Height}

	txCfg := session.TXConfig{
		RingCapacity: 1, Geo: geo, Mode: rfc4175.SingleLine, MTU: 1460,
		PayloadType: 112, SSRC: 1, ConvertReq: convReq,
		Pacing: pacing.Config{FPS: 50, Profile: pacing.WideProfile},
	}
	tx, err := session.NewTXSession("tx1", txCfg, reg, nicDrv, ptpSrc, session.Callbacks{})
	if err != nil {
		t.Fatalf("NewTXSession: %v", err)
	}
	if err := tx.Start(); err != nil {
		t.Fatalf("tx.Start: %v", err)
	}

	// Drain the one Free slot so a subsequent GetFrame would otherwise block.
	slot, err := tx.GetFrame(0)
	if err != nil {
		t.Fatalf("tx.GetFrame: %v", err)
	}
	_ = slot

	done := make(chan error, 1)
	go func() {
		_, err := tx.GetFrame(time.Second)
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	tx.Stop()
	tx.Stop() // idempotent

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected an error after Stop, got nil")
		}
	case <-time.After(time.Second):
		t.Fatal("GetFrame did not return within 1s of Stop")
	}
}
