package mtlcore

import (
	"errors"
	"testing"

	"github.com/smpte2110/mtl-core/mtlerr"
	"github.com/smpte2110/mtl-core/nic"
	"github.com/smpte2110/mtl-core/session"
)

func TestDispatchVideo20ReachesCallback(t *testing.T) {
	s := &Session{Kind: Video20}
	var gotCalled bool
	err := s.Dispatch(func(tx *session.TXSession, rx *session.RXSession) error {
		gotCalled = true
		return nil
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !gotCalled {
		t.Fatal("videoFn was not called for Video20")
	}
}

func TestDispatchUnsupportedKinds(t *testing.T) {
	for _, k := range []MediaKind{Video22, Audio30, Ancillary40, MediaKind(99)} {
		s := &Session{Kind: k}
		err := s.Dispatch(func(tx *session.TXSession, rx *session.RXSession) error {
			t.Fatalf("videoFn should not be called for kind %s", k)
			return nil
		})
		if !errors.Is(err, mtlerr.ErrUnsupportedFormat) {
			t.Fatalf("kind %s: got err %v, want ErrUnsupportedFormat", k, err)
		}
	}
}

func TestMediaKindString(t *testing.T) {
	cases := map[MediaKind]string{
		Video20: "Video20", Video22: "Video22", Audio30: "Audio30",
		Ancillary40: "Ancillary40", MediaKind(250): "Unknown",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("MediaKind(%d).String() = %q, want %q", k, got, want)
		}
	}
}

func TestHandleRegistryAcquireReleaseRefcount(t *testing.T) {
	inits := 0
	closes := 0
	reg := NewHandleRegistry(
		func() (*NICHandle, error) {
			inits++
			return &NICHandle{Driver: nic.NewSimDriver()}, nil
		},
		func(*NICHandle) { closes++ },
	)

	h1, err := reg.Acquire()
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if h1 == nil {
		t.Fatal("expected non-nil handle")
	}
	if inits != 1 {
		t.Fatalf("inits = %d, want 1", inits)
	}

	h2, err := reg.Acquire()
	if err != nil {
		t.Fatalf("Acquire (2nd): %v", err)
	}
	if h2 != h1 {
		t.Fatal("expected the same handle to be shared across Acquire calls")
	}
	if inits != 1 {
		t.Fatalf("inits = %d after 2nd Acquire, want still 1 (no re-init)", inits)
	}
	if reg.Refcount() != 2 {
		t.Fatalf("Refcount() = %d, want 2", reg.Refcount())
	}

	reg.Release()
	if closes != 0 {
		t.Fatalf("closes = %d after first Release, want 0 (refcount still 1)", closes)
	}
	reg.Release()
	if closes != 1 {
		t.Fatalf("closes = %d after second Release, want 1", closes)
	}
	if reg.Refcount() != 0 {
		t.Fatalf("Refcount() = %d, want 0", reg.Refcount())
	}

	// A further Release below zero must not panic or go negative.
	reg.Release()
	if reg.Refcount() != 0 {
		t.Fatalf("Refcount() = %d after over-release, want 0", reg.Refcount())
	}
}

func TestHandleRegistryReacquireAfterRelease(t *testing.T) {
	inits := 0
	reg := NewHandleRegistry(
		func() (*NICHandle, error) {
			inits++
			return &NICHandle{Driver: nic.NewSimDriver()}, nil
		},
		func(*NICHandle) {},
	)
	if _, err := reg.Acquire(); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	reg.Release()
	if _, err := reg.Acquire(); err != nil {
		t.Fatalf("Acquire (after release): %v", err)
	}
	if inits != 2 {
		t.Fatalf("inits = %d, want 2 (re-init after refcount hit zero)", inits)
	}
}
