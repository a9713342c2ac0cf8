package domain

// Record is an undecoded arrival read from a feed.
// A Decoder turns it into a Message; a record that fails to decode is dropped.
type Record struct {
	// Stream names the stream the record belongs to
	Stream StreamID

	// Timestamp is the observation time in unix nanoseconds
	Timestamp int64

	// Raw is the encoded payload
	Raw []byte

	// Line is the position of the record in its feed, for diagnostics
	Line int64
}
