package dataplane

import "fmt"

// CoreSocket pairs one core's bound AF_XDP socket with the full frame
// pool it draws from — its own UMEM if unshared, or core 0's if
// share_umem is set.
type CoreSocket struct {
	Core   int
	Socket *Socket
	Frames []FrameDesc
	UMEM   *UMEM // the pool this socket's frames belong to; owned jointly when shared
}

// BuildSockets creates one AF_XDP socket per core. When
// shareUMEM is false each core gets an independent 2048-frame pool;
// when true every core binds XDP_SHARED_UMEM against core 0's
// registration and pool. Sharing is mandatory when core count > 1;
// callers must reject numCores > 1 && !shareUMEM before calling this.
func BuildSockets(ifaceIndex int, numCores int, queueIDs []int, shareUMEM bool) ([]*CoreSocket, error) {
	if numCores > 1 && !shareUMEM {
		return nil, fmt.Errorf("dataplane: share_umem must be set when xdp_cores > 1 (got %d)", numCores)
	}

	out := make([]*CoreSocket, 0, numCores)
	var shared *UMEM
	var sharedFD int

	for i := 0; i < numCores; i++ {
		owns := !shareUMEM || i == 0

		var u *UMEM
		if owns {
			var err error
			u, err = NewUMEM(NumFrames, defaultFrameSize, FrameHeadroom)
			if err != nil {
				return nil, fmt.Errorf("core %d: %w", i, err)
			}
			if shareUMEM {
				shared = u
			}
		} else {
			u = shared
		}

		qid := 0
		if i < len(queueIDs) {
			qid = queueIDs[i]
		}

		sock, err := NewSocket(ifaceIndex, qid, u, owns, sharedFD)
		if err != nil {
			return nil, fmt.Errorf("core %d: %w", i, err)
		}
		if owns {
			sharedFD = sock.FD
		}

		frames := u.InitialFrames()
		if owns {
			sock.Mediate.Fill.Produce(frames)
		}

		out = append(out, &CoreSocket{Core: i, Socket: sock, Frames: frames, UMEM: u})
	}

	return out, nil
}

// FDs returns the receive-socket file descriptor for every core, in
// core order, for the installer to write into each Body NF's xsk_map.
func FDs(sockets []*CoreSocket) []int {
	fds := make([]int, len(sockets))
	for i, s := range sockets {
		fds[i] = s.Socket.FD
	}
	return fds
}
