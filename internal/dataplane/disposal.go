package dataplane

// DisposalMode selects how spent UMEM frame descriptors flow back to
// the fill queue owner. FirstThread assigns fq/cq handling to
// core 0 directly inside its own packet loop; ExtraThread spins a
// dedicated goroutine solely responsible for it.
type DisposalMode string

const (
	DisposalFirstThread DisposalMode = "first-thread"
	DisposalExtraThread DisposalMode = "extra-thread"
)

// disposalRingCapacity bounds each single-producer ring between a
// non-owner core and the fq/cq owner; sized well above one poll
// iteration's worth of drops under normal load.
const disposalRingCapacity = 2048

// DisposalRing is the single-producer channel one non-owner core uses
// to hand spent frame descriptors to the fq/cq owner. A buffered Go
// channel carries the single-writer/single-reader contract this
// handoff needs.
type DisposalRing chan FrameDesc

// NewDisposalRing allocates one core's disposal ring.
func NewDisposalRing() DisposalRing {
	return make(DisposalRing, disposalRingCapacity)
}

// Push enqueues spent descriptors without blocking, returning how many
// were accepted before the ring filled. Callers must retain the
// remainder and retry it on a later iteration; a descriptor neither
// enqueued nor retained would leak from the pool permanently.
func (r DisposalRing) Push(descs []FrameDesc) int {
	n := 0
	for _, d := range descs {
		select {
		case r <- d:
			n++
		default:
			return n
		}
	}
	return n
}

// Drain removes every descriptor currently queued and appends them to
// out, growing out as needed.
func (r DisposalRing) Drain(out []FrameDesc) []FrameDesc {
	for {
		select {
		case d := <-r:
			out = append(out, d)
		default:
			return out
		}
	}
}
