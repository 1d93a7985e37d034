package domain

import "strings"

// Address is a phone number with an optional carrier. An empty Carrier means none.
type Address struct {
	Number  string `json:"number"`
	Carrier string `json:"carrier,omitempty"`
}

func (a Address) String() string {
	if a.Carrier == "" {
		return a.Number
	}
	return a.Number + " (" + a.Carrier + ")"
}

// Recipient is implemented by user-like values that know their own number.
type Recipient interface {
	PhoneNumber() string
	PhoneCarrier() string
}

// HasLocalePreference is implemented by recipients with a preferred locale.
type HasLocalePreference interface {
	PreferredLocale() string
}

// Message is the transport-level view of one outbound SMS. It is built
// fresh for every send and never reused.
type Message struct {
	from []Address
	to   []Address
	body string
}

func NewMessage() *Message {
	return &Message{}
}

// SetFrom appends a sender.
func (m *Message) SetFrom(number, carrier string) *Message {
	m.from = append(m.from, Address{Number: number, Carrier: carrier})
	return m
}

// SetTo appends a recipient.
func (m *Message) SetTo(number, carrier string) *Message {
	m.to = append(m.to, Address{Number: number, Carrier: carrier})
	return m
}

// OverrideTo replaces every recipient.
func (m *Message) OverrideTo(addrs ...Address) *Message {
	m.to = append([]Address(nil), addrs...)
	return m
}

func (m *Message) SetBody(body string) *Message {
	m.body = body
	return m
}

func (m *Message) From() []Address { return append([]Address(nil), m.from...) }
func (m *Message) To() []Address   { return append([]Address(nil), m.to...) }
func (m *Message) Body() string    { return m.body }

// Numbers lists the recipient numbers in order.
func (m *Message) Numbers() []string {
	out := make([]string, 0, len(m.to))
	for _, a := range m.to {
		out = append(out, a.Number)
	}
	return out
}

// Summary renders the message the way the log transport writes it.
func (m *Message) Summary() string {
	return "From: " + joinAddresses(m.from) + "\nTo: " + joinAddresses(m.to) + "\nBody: " + m.body
}

func joinAddresses(addrs []Address) string {
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		parts = append(parts, a.String())
	}
	return strings.Join(parts, ", ")
}
