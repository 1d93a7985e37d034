package domain

import "errors"

var (
	// ErrUnsupportedTransport indicates a provider record names a blank or unknown transport type.
	ErrUnsupportedTransport = errors.New("unsupported sms transport")
	// ErrUndefinedProvider indicates no provider record exists for the requested name.
	ErrUndefinedProvider = errors.New("sms provider is not defined")
	// ErrInvalidView indicates a view selector of an unrecognized shape.
	ErrInvalidView = errors.New("invalid view")
	// ErrMissingCarrier indicates an email gateway recipient without a carrier.
	ErrMissingCarrier = errors.New("a carrier must be specified when using the email transport")
	// ErrUnknownGateway indicates a carrier with no email gateway domain.
	ErrUnknownGateway = errors.New("could not find email gateway for carrier")
	// ErrInvalidArgument indicates a non-queueable textable was handed to a queue operation.
	ErrInvalidArgument = errors.New("only queueable textables may be queued")
	// ErrMissingContent indicates a textable with neither text nor a view.
	ErrMissingContent = errors.New("textable has neither text nor view")
	// ErrInvalidAddress indicates a recipient or sender value that cannot be normalized.
	ErrInvalidAddress = errors.New("invalid sms address")
	// ErrQueueUnavailable indicates a queue operation on a provider without a bound queue.
	ErrQueueUnavailable = errors.New("no job queue bound to provider")
	// ErrUnknownKind indicates a queued job whose textable kind is not registered.
	ErrUnknownKind = errors.New("unknown textable kind")
	// ErrMailerUnavailable indicates an email transport was requested without a mailer.
	ErrMailerUnavailable = errors.New("no mailer configured for the email transport")

	ErrNotFound  = errors.New("resource not found")
	ErrNoDueJobs = errors.New("no due jobs found")
)
