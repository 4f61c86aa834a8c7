package protocol

// Decode-side size caps. The parser enforces these so a hostile peer cannot
// make the server allocate unbounded memory from a single message.
const (
	// MaxMessageLen caps one input message. Events carry at most a dozen
	// small decimal fields; 4 KiB leaves generous headroom.
	MaxMessageLen = 4096

	// MaxCommandLen caps one output command as seen by a protocol client.
	// Put-image commands carry base64 pixel data, so the cap is sized for
	// a full frame of a large window.
	MaxCommandLen = 16 << 20

	// MaxImageBytes caps the decoded PNG payload of an image command.
	MaxImageBytes = 12 << 20
)
