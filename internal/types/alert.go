package types

import "time"

// Alert is one active weather alert as returned by the alert feed.
type Alert struct {
	ID              string
	EventType       string
	AreaDescription string
	Issuer          string
	Description     string
	Expiry          *time.Time
}

// Recipient is a resolved notification target
type Recipient struct {
	ID          string
	DisplayName string
}

// Message is a rendered notification, roughly a chat embed
type Message struct {
	Title    string
	Body     string
	Fields   []Field
	Footer   string
	Severity string // "critical", "warning" or "info"
}

// Field is a named line inside a Message
type Field struct {
	Name  string
	Value string
}

// Text flattens the message into plain text for transports without rich formatting.
func (m Message) Text() string {
	out := m.Title
	if m.Body != "" {
		if out != "" {
			out += "\n\n"
		}
		out += m.Body
	}
	for _, f := range m.Fields {
		out += "\n" + f.Name + ": " + f.Value
	}
	if m.Footer != "" {
		out += "\n\n" + m.Footer
	}
	return out
}
