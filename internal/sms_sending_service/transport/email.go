package transport

import (
	"context"
	"fmt"

	"github.com/aradsms/textsms/internal/sms_sending_service/domain"
)

var defaultGateways = map[string]string{
	"airfiremobile":      "sms.airfiremobile.com",
	"alaskacommunicates": "msg.acsalaska.com",
	"ameritech":          "paging.acswireless.com",
	"assurancewireless":  "vmobl.com",
	"att":                "txt.att.net",
	"boostmobile":        "sms.myboostmobile.com",
	"cleartalk":          "sms.cleartalk.us",
	"cricket":            "sms.mycricket.com",
	"metropcs":           "mymetropcs.com",
	"nextech":            "sms.ntwls.net",
	"projectfi":          "msg.fi.google.com",
	"rogerswireless":     "sms.rogers.com",
	"sprint":             "messaging.sprintpcs.com",
	"tmobile":            "tmomail.net",
	"unicel":             "utext.com",
	"uscellular":         "email.uscc.net",
	"verizonwireless":    "vtext.com",
	"virginmobile":       "vmobl.com",
}

// DefaultGateways returns a copy of the built-in carrier to email domain table.
func DefaultGateways() map[string]string {
	out := make(map[string]string, len(defaultGateways))
	for k, v := range defaultGateways {
		out[k] = v
	}
	return out
}

// Email is the envelope a Mailer builds for one raw text mail.
type Email struct {
	From string
	To   []string
	Body string
}

// SetFrom sets the sender address.
func (e *Email) SetFrom(address string) { e.From = address }

// AddTo appends a recipient address.
func (e *Email) AddTo(address string) { e.To = append(e.To, address) }

// Mailer sends a plain text mail. build fills in sender and recipients.
type Mailer interface {
	SendRaw(ctx context.Context, body string, build func(*Email)) error
}

// EmailTransport delivers through carrier email-to-SMS gateways: every
// recipient becomes number@gateway for its carrier.
type EmailTransport struct {
	mailer   Mailer
	gateways map[string]string
}

// NewEmailTransport merges overrides over the default gateway table.
func NewEmailTransport(mailer Mailer, overrides map[string]string) *EmailTransport {
	gateways := DefaultGateways()
	for carrier, host := range overrides {
		gateways[carrier] = host
	}
	return &EmailTransport{mailer: mailer, gateways: gateways}
}

// Gateways returns a copy of the effective gateway table.
func (t *EmailTransport) Gateways() map[string]string {
	out := make(map[string]string, len(t.gateways))
	for k, v := range t.gateways {
		out[k] = v
	}
	return out
}

// Send resolves every recipient before mailing anything; one bad recipient
// aborts the whole message.
func (t *EmailTransport) Send(ctx context.Context, message *domain.Message) (*SendResult, error) {
	to := message.To()
	addresses := make([]string, 0, len(to))
	for _, recipient := range to {
		address, err := t.gatewayAddress(recipient)
		if err != nil {
			return nil, err
		}
		addresses = append(addresses, address)
	}

	var from string
	if senders := message.From(); len(senders) > 0 {
		from = senders[0].Number
	}

	err := t.mailer.SendRaw(ctx, message.Body(), func(e *Email) {
		for _, address := range addresses {
			e.AddTo(address)
		}
		e.SetFrom(from)
	})
	if err != nil {
		return nil, fmt.Errorf("email gateway send: %w", err)
	}
	return &SendResult{Accepted: len(to)}, nil
}

func (t *EmailTransport) gatewayAddress(recipient domain.Address) (string, error) {
	if recipient.Carrier == "" {
		return "", domain.ErrMissingCarrier
	}
	host, ok := t.gateways[recipient.Carrier]
	if !ok || host == "" {
		return "", fmt.Errorf("%w [%s]", domain.ErrUnknownGateway, recipient.Carrier)
	}
	return recipient.Number + "@" + host, nil
}
