package model

// Monitor is one registry record for an external job's liveness contract.
// LastPing and the derived death time are Unix epoch seconds; the remote
// side advances LastPing on every ping and generates an alert from the
// template fields once the timeout is exceeded.
type Monitor struct {
	ID           string `json:"id"`
	LastPing     int64  `json:"last_ping"`
	TimeoutHours int64  `json:"timeout_hours"`
	AlertSubject string `json:"alert_subject"`
	AlertBody    string `json:"alert_body"`
}
