package alert

// Notifier delivers out-of-band alerts to the supervising partner. This
// keeps the application logic decoupled from the messaging library.
type Notifier interface {
	EscalationRaised(year int, clientID, escalatedBy string) error
}
