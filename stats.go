package linkcore

// Stats is a snapshot of the link's diagnostic counters. All counters are
// cumulative over the life of the Link, across sessions.
type Stats struct {
	// WordsConsumed counts transport words drained by Poll.
	WordsConsumed uint64
	// FramesAccepted counts frames that passed checksum validation.
	FramesAccepted uint64
	// ChecksumFailures counts completed frames rejected by checksum.
	ChecksumFailures uint64
	// HeaderRejects counts frame headers declaring an oversize payload.
	HeaderRejects uint64
	// Retransmits counts reliable frame retransmissions.
	Retransmits uint64
	// Delivered counts payloads handed to the application.
	Delivered uint64
	// Dropped counts unreliable payloads discarded for lack of queue
	// space.
	Dropped uint64
}

// Stats returns a snapshot of the link's diagnostic counters.
func (l *Link) Stats() Stats {
	ps := l.parser.Stats()
	return Stats{
		WordsConsumed:    ps.WordsConsumed,
		FramesAccepted:   ps.FramesAccepted,
		ChecksumFailures: ps.ChecksumFailures,
		HeaderRejects:    ps.HeaderRejects,
		Retransmits:      l.retransmits,
		Delivered:        l.delivered,
		Dropped:          l.dropped,
	}
}
