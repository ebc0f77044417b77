package model

// Alert is an immutable snapshot produced remotely when a monitor expires,
// as returned by GET {base}/outbox.
type Alert struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// ArchiveEntry is one record of the local append-only alert archive.
// Time is the display timestamp rendered at processing time, already in
// the configured zone.
type ArchiveEntry struct {
	Time    string
	Subject string
	Body    string
}
