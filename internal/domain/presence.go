package domain

// NoSignal is the signal value the presence source writes for "no store"
const NoSignal = "0"

// PresenceRecord is the per-user document written by the presence source
type PresenceRecord struct {
	OwnerEmail string `json:"ownerEmail"` // Identity key
	Signal     string `json:"signal"`     // Store identifier, "0" or empty when unassigned
}

// NormalizeSignal maps the unassigned encodings ("0", empty) to ""
func NormalizeSignal(signal string) string {
	if signal == NoSignal {
		return ""
	}
	return signal
}
