// Package errs implements the gateway's error taxonomy: a closed set of
// error kinds, each mapped to a fixed JSON-RPC code and a safe,
// client-facing message. Errors are values returned up the call stack, not
// panicked or thrown.
package errs

import (
	"errors"
	"fmt"
)

// Kind identifies one of the eight error categories the gateway can return.
type Kind int

const (
	Client Kind = iota
	Validation
	Auth
	Server
	Rpc
	Network
	PaymentRequired
	InvalidPayment
)

func (k Kind) String() string {
	switch k {
	case Client:
		return "client"
	case Validation:
		return "validation"
	case Auth:
		return "auth"
	case Server:
		return "server"
	case Rpc:
		return "rpc"
	case Network:
		return "network"
	case PaymentRequired:
		return "payment_required"
	case InvalidPayment:
		return "invalid_payment"
	default:
		return "unknown"
	}
}

// codeTable maps each Kind to its fixed JSON-RPC wire code. Total and stable.
var codeTable = map[Kind]int{
	Client:          -32602,
	Validation:      -32602,
	Auth:            -32601,
	Server:          -32603,
	Rpc:             -32603,
	Network:         -32603,
	PaymentRequired: -40200,
	InvalidPayment:  -40201,
}

// Code returns the JSON-RPC error code for k. Total over all defined kinds.
func (k Kind) Code() int {
	code, ok := codeTable[k]
	if !ok {
		return -32603
	}
	return code
}

// Error is the gateway's error value. It carries the originating kind plus
// whatever propagation context each stage of the pipeline attached.
type Error struct {
	Kind    Kind
	Message string // original message; safe only for Client/Validation/PaymentRequired/InvalidPayment kinds

	RequestID string
	Method    string

	// Kind-specific context.
	Parameter     string // Validation
	RPCURL        string // Rpc
	Endpoint      string // Network
	SourceMessage string // Server, Rpc, Network — never surfaced to the client

	Requirement interface{} // PaymentRequired: full PaymentRequirements payload for `data`
}

func (e *Error) Error() string {
	if e.SourceMessage != "" {
		return fmt.Sprintf("%s: %s (source: %s)", e.Kind, e.Message, e.SourceMessage)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// SafeMessage projects the error onto the client-visible message defined by
// the kind, per the wire table. Source error text is never included.
func (e *Error) SafeMessage() string {
	switch e.Kind {
	case Client, Validation:
		return e.Message
	case Auth:
		return "Authentication required"
	case Server:
		return "Internal server error"
	case Rpc:
		return "RPC service temporarily unavailable"
	case Network:
		return "Network service temporarily unavailable"
	case PaymentRequired:
		return e.Message
	case InvalidPayment:
		return fmt.Sprintf("Invalid payment: %s", e.Message)
	default:
		return "Internal server error"
	}
}

// WithRequestID attaches a request id and returns the same error for chaining.
func (e *Error) WithRequestID(id string) *Error {
	e.RequestID = id
	return e
}

// WithMethod attaches a method name and returns the same error for chaining.
func (e *Error) WithMethod(method string) *Error {
	e.Method = method
	return e
}

// NewClient builds a Client-kind error. message is assumed safe to surface.
func NewClient(message string) *Error { return &Error{Kind: Client, Message: message} }

// NewValidation builds a Validation-kind error naming the offending parameter.
func NewValidation(parameter, message string) *Error {
	return &Error{Kind: Validation, Parameter: parameter, Message: message}
}

// NewAuth builds an Auth-kind error.
func NewAuth(message string) *Error { return &Error{Kind: Auth, Message: message} }

// NewServer wraps an internal failure. source is logged but never surfaced.
func NewServer(source error) *Error {
	return &Error{Kind: Server, Message: "internal error", SourceMessage: source.Error()}
}

// NewRpc wraps an upstream RPC failure with the URL that was contacted.
func NewRpc(rpcURL string, source error) *Error {
	return &Error{Kind: Rpc, RPCURL: rpcURL, Message: "rpc failure", SourceMessage: source.Error()}
}

// NewNetwork wraps a transport-level failure against endpoint.
func NewNetwork(endpoint string, source error) *Error {
	return &Error{Kind: Network, Endpoint: endpoint, Message: "network failure", SourceMessage: source.Error()}
}

// NewPaymentRequired builds the -40200 error; requirement is the full
// PaymentRequirements payload surfaced under the JSON-RPC error's data field.
func NewPaymentRequired(message string, requirement interface{}) *Error {
	return &Error{Kind: PaymentRequired, Message: message, Requirement: requirement}
}

// NewInvalidPayment builds the -40201 error.
func NewInvalidPayment(reason string) *Error {
	return &Error{Kind: InvalidPayment, Message: reason}
}

// As reports whether err is an *Error, unwrapping through fmt.Errorf %w chains.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
