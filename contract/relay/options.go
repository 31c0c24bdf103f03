package relay

// ForwardOptions controls how a message leaves the process.
// Key is used for partitioning where the transport supports it.
type ForwardOptions struct {
	SubjectOverride string
	Key             string
	Headers         map[string]string
}
