package dataplane

import "testing"

func TestUMEM_InitialFrames(t *testing.T) {
	u, err := NewUMEM(4, 256, FrameHeadroom)
	if err != nil {
		t.Fatalf("NewUMEM: %v", err)
	}
	defer u.Close()

	frames := u.InitialFrames()
	if len(frames) != 4 {
		t.Fatalf("InitialFrames() returned %d frames, want 4", len(frames))
	}
	for i, f := range frames {
		if f.Addr != uint64(i*256) {
			t.Errorf("frame %d: Addr = %d, want %d", i, f.Addr, i*256)
		}
		if f.Len != 0 {
			t.Errorf("frame %d: Len = %d, want 0", i, f.Len)
		}
	}
}

func TestUMEM_HeadroomAndData(t *testing.T) {
	u, err := NewUMEM(2, 256, FrameHeadroom)
	if err != nil {
		t.Fatalf("NewUMEM: %v", err)
	}
	defer u.Close()

	f := FrameDesc{Addr: 256, Len: 16}

	hdr := u.Headroom(f)
	if len(hdr) != FrameHeadroom {
		t.Fatalf("Headroom() len = %d, want %d", len(hdr), FrameHeadroom)
	}
	// Writing to headroom must not disturb the frame's payload region.
	hdr[0] = 0xAB

	data := u.Data(f)
	if len(data) != int(f.Len) {
		t.Fatalf("Data() len = %d, want %d", len(data), f.Len)
	}
	data[0] = 0xCD
	if hdr[0] != 0xAB {
		t.Fatalf("writing Data() corrupted Headroom()'s first byte")
	}

	full := u.DataCap(f)
	if len(full) != 256-FrameHeadroom {
		t.Fatalf("DataCap() len = %d, want %d", len(full), 256-FrameHeadroom)
	}
}

func TestUMEM_BuildSockets_RejectsUnsharedMultiCore(t *testing.T) {
	_, err := BuildSockets(0, 2, nil, false)
	if err == nil {
		t.Fatalf("BuildSockets(numCores=2, shareUMEM=false) = nil error, want rejection")
	}
}
