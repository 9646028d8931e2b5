// Package neterror defines the closed taxonomy of network failure kinds
// used throughout chromenet, with stable integer codes mirroring
// Chromium's net_error_list.h for directly-mapped errors.
//
// The package unifies the two error-handling styles a casual read of the
// ecosystem turns up — explicit code mapping on one hand, a wrapped IO
// error with context on the other — into a single tagged-variant Error
// with an optional source chain and a Code()/FromCode() pair, per the
// rewrite guidance in the distilled specification's design notes.
package neterror

import "fmt"

// Kind enumerates the stable error variants chromenet can return.
// Kind values themselves are not stable identifiers for serialization;
// use Code() for that.
type Kind int

const (
	Unknown Kind = iota

	// Connection
	ConnectionRefused
	ConnectionReset
	ConnectionAborted
	ConnectionClosed
	ConnectionTimedOut
	SocketNotConnected
	NameNotResolved
	AddressInvalid
	AddressUnreachable
	InternetDisconnected

	// TLS
	TLSProtocolError
	TLSVersionOrCipherMismatch
	BadCertificate
	CertPinningFailed
	CTRequirementUnmet
	EarlyDataRejected

	// Proxy
	ProxyTunnelFailed
	ProxyAuthRequired
	ProxyAuthUnsupported
	SOCKSFailure

	// HTTP
	InvalidURL
	UnknownURLScheme
	TooManyRedirects
	RedirectCycleDetected
	UnsafeRedirect
	InvalidResponse
	InvalidChunkedEncoding
	ContentLengthMismatch
	EmptyResponse
	HeadersTooBig

	// H2
	Http2ProtocolError
	Http2FlowControlError
	Http2FrameSizeError
	Http2ServerRefusedStream
	Http2StreamClosed
	Http2InadequateTransportSecurity
	Http2PingFailed

	// Cookie
	CookieInvalidPrefix
	CookiePublicSuffixRejected

	// Resource
	PreconnectMaxSocketLimit
	NoBufferSpace
)

// codeTable maps each Kind to its stable wire code. Codes in -100..-378
// mirror Chromium's net_error_list.h direct-mapped errors; codes at or
// below -900 are chromenet-specific, for kinds without a Chromium analog.
var codeTable = map[Kind]int{
	Unknown: -2,

	ConnectionRefused:    -102,
	ConnectionReset:      -101,
	ConnectionAborted:    -103,
	ConnectionClosed:     -100,
	ConnectionTimedOut:   -118,
	SocketNotConnected:   -15,
	NameNotResolved:      -105,
	AddressInvalid:       -108,
	AddressUnreachable:   -109,
	InternetDisconnected: -106,

	TLSProtocolError:           -107,
	TLSVersionOrCipherMismatch: -113,
	BadCertificate:             -200,
	CertPinningFailed:          -150,
	CTRequirementUnmet:         -157,
	EarlyDataRejected:          -181,

	ProxyTunnelFailed:     -130,
	ProxyAuthRequired:     -378,
	ProxyAuthUnsupported:  -339,
	SOCKSFailure:          -121,

	InvalidURL:             -300,
	UnknownURLScheme:       -302,
	TooManyRedirects:       -310,
	RedirectCycleDetected:  -311,
	UnsafeRedirect:         -312,
	InvalidResponse:        -320,
	InvalidChunkedEncoding: -327,
	ContentLengthMismatch:  -328,
	EmptyResponse:          -324,
	HeadersTooBig:          -325,

	Http2ProtocolError:               -354,
	Http2FlowControlError:             -355,
	Http2FrameSizeError:               -356,
	Http2ServerRefusedStream:          -357,
	Http2StreamClosed:                 -358,
	Http2InadequateTransportSecurity: -360,
	Http2PingFailed:                   -361,

	CookieInvalidPrefix:        -901,
	CookiePublicSuffixRejected: -902,

	PreconnectMaxSocketLimit: -910,
	NoBufferSpace:            -911,
}

var reverseCodeTable = func() map[int]Kind {
	out := make(map[int]Kind, len(codeTable))
	for k, c := range codeTable {
		out[c] = k
	}
	return out
}()

// String returns a short human-readable name for the kind.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "Unknown"
}

var kindNames = map[Kind]string{
	Unknown:                    "Unknown",
	ConnectionRefused:          "ConnectionRefused",
	ConnectionReset:            "ConnectionReset",
	ConnectionAborted:          "ConnectionAborted",
	ConnectionClosed:           "ConnectionClosed",
	ConnectionTimedOut:         "ConnectionTimedOut",
	SocketNotConnected:         "SocketNotConnected",
	NameNotResolved:            "NameNotResolved",
	AddressInvalid:             "AddressInvalid",
	AddressUnreachable:         "AddressUnreachable",
	InternetDisconnected:       "InternetDisconnected",
	TLSProtocolError:           "TLSProtocolError",
	TLSVersionOrCipherMismatch: "TLSVersionOrCipherMismatch",
	BadCertificate:             "BadCertificate",
	CertPinningFailed:          "CertPinningFailed",
	CTRequirementUnmet:         "CTRequirementUnmet",
	EarlyDataRejected:          "EarlyDataRejected",
	ProxyTunnelFailed:          "ProxyTunnelFailed",
	ProxyAuthRequired:          "ProxyAuthRequired",
	ProxyAuthUnsupported:       "ProxyAuthUnsupported",
	SOCKSFailure:               "SOCKSFailure",
	InvalidURL:                 "InvalidURL",
	UnknownURLScheme:           "UnknownURLScheme",
	TooManyRedirects:           "TooManyRedirects",
	RedirectCycleDetected:      "RedirectCycleDetected",
	UnsafeRedirect:             "UnsafeRedirect",
	InvalidResponse:            "InvalidResponse",
	InvalidChunkedEncoding:     "InvalidChunkedEncoding",
	ContentLengthMismatch:      "ContentLengthMismatch",
	EmptyResponse:              "EmptyResponse",
	HeadersTooBig:              "HeadersTooBig",
	Http2ProtocolError:         "Http2ProtocolError",
	Http2FlowControlError:      "Http2FlowControlError",
	Http2FrameSizeError:        "Http2FrameSizeError",
	Http2ServerRefusedStream:   "Http2ServerRefusedStream",
	Http2StreamClosed:          "Http2StreamClosed",
	Http2InadequateTransportSecurity: "Http2InadequateTransportSecurity",
	Http2PingFailed:                   "Http2PingFailed",
	CookieInvalidPrefix:        "CookieInvalidPrefix",
	CookiePublicSuffixRejected: "CookiePublicSuffixRejected",
	PreconnectMaxSocketLimit:   "PreconnectMaxSocketLimit",
	NoBufferSpace:              "NoBufferSpace",
}

// Error is chromenet's single error type. It carries a stable Kind, an
// optional host:port the failure pertains to, and an optional wrapped
// source error.
type Error struct {
	Kind   Kind
	Host   string // host:port or queried domain, when applicable
	Msg    string
	Source error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Kind.String()
	if e.Msg != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Msg)
	}
	if e.Host != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Host)
	}
	if e.Source != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Source)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Source }

// Code returns e's stable wire code.
func (e *Error) Code() int { return ToCode(e.Kind) }

// New constructs an Error of the given kind with an attached message.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap constructs an Error of the given kind wrapping source, optionally
// tagging it with the host:port the failure pertains to.
func Wrap(kind Kind, host string, source error) *Error {
	return &Error{Kind: kind, Host: host, Source: source}
}

// ToCode converts a Kind to its stable wire code.
func ToCode(k Kind) int {
	if c, ok := codeTable[k]; ok {
		return c
	}
	return codeTable[Unknown]
}

// FromCode converts a stable wire code back to its Kind. Unknown codes
// return Unknown.
func FromCode(code int) Kind {
	if k, ok := reverseCodeTable[code]; ok {
		return k
	}
	return Unknown
}

// Is reports whether err is a chromenet *Error of the given kind. It
// unwraps through wrapped errors via errors.As semantics implemented by
// hand to avoid importing the errors package's As for a single check.
func Is(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind == kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
