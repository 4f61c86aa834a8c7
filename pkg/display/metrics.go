package display

import "sync/atomic"

// metrics holds the server's hot-path counters. Plain atomics keep the cost
// negligible; exporters sample them through Stats.
type metrics struct {
	connects       atomic.Uint64
	disconnects    atomic.Uint64
	inputMessages  atomic.Uint64
	droppedInputs  atomic.Uint64
	commands       atomic.Uint64
	flushes        atomic.Uint64
	bytesOut       atomic.Uint64
	bytesIn        atomic.Uint64
	syncRoundtrips atomic.Uint64
}

// Stats is a point-in-time sample of the server's counters and state.
type Stats struct {
	Connects       uint64
	Disconnects    uint64
	InputMessages  uint64
	DroppedInputs  uint64
	Commands       uint64
	Flushes        uint64
	BytesSent      uint64
	BytesReceived  uint64
	SyncRoundtrips uint64
	Windows        int
	Connected      bool
}

// Stats returns current counters. It is safe from any goroutine.
func (s *Server) Stats() Stats {
	s.snapMu.RLock()
	windows := s.snap.windowCount
	connected := s.snap.connected
	s.snapMu.RUnlock()
	return Stats{
		Connects:       s.metrics.connects.Load(),
		Disconnects:    s.metrics.disconnects.Load(),
		InputMessages:  s.metrics.inputMessages.Load(),
		DroppedInputs:  s.metrics.droppedInputs.Load(),
		Commands:       s.metrics.commands.Load(),
		Flushes:        s.metrics.flushes.Load(),
		BytesSent:      s.metrics.bytesOut.Load(),
		BytesReceived:  s.metrics.bytesIn.Load(),
		SyncRoundtrips: s.metrics.syncRoundtrips.Load(),
		Windows:        windows,
		Connected:      connected,
	}
}
