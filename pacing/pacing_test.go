package pacing

import "testing"

func TestEpochStartAligns(t *testing.T) {
	p := New(Config{FPS: 60000.0 / 1001.0, TotalPkts: 4116, Profile: NarrowProfile})
	e1 := p.EpochStart(1)
	if e1%uint64(p.tFrameNs) != 0 {
		t.Fatalf("epoch %d not aligned to frame period %d", e1, p.tFrameNs)
	}
	e2 := p.EpochStart(e1 + 1)
	if e2 <= e1 {
		t.Fatalf("next epoch %d did not advance past %d", e2, e1)
	}
}

func TestTxNsMonotonic(t *testing.T) {
	p := New(Config{FPS: 50, TotalPkts: 100, Profile: WideProfile})
	epoch := p.EpochStart(0)
	prev := p.TxNs(epoch, 0)
	for k := 1; k < 100; k++ {
		next := p.TxNs(epoch, k)
		if next <= prev {
			t.Fatalf("TxNs not strictly increasing at k=%d: %d <= %d", k, next, prev)
		}
		prev = next
	}
}

func TestCheckLateIncrementsCounter(t *testing.T) {
	p := New(Config{FPS: 50, TotalPkts: 10, Profile: WideProfile})
	epoch := uint64(1_000_000_000)
	if p.CheckLate(epoch, epoch) {
		t.Fatal("on-time packet should not be late")
	}
	late := epoch + uint64(p.ttrsNs)*10
	if !p.CheckLate(late, epoch) {
		t.Fatal("packet well past T_trs should be late")
	}
	if p.EpochsMissed != 1 {
		t.Fatalf("EpochsMissed = %d, want 1", p.EpochsMissed)
	}
}

func TestProfileForSelectsNarrowAbove1080(t *testing.T) {
	if ProfileFor(1080, 60).Name != "narrow" {
		t.Fatal("1080 lines should select the narrow profile")
	}
	if ProfileFor(480, 60).Name != "wide" {
		t.Fatal("480 lines should select the wide profile")
	}
}
