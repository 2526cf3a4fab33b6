package crawler

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/url"
)

// Crawl errors.
var (
	// ErrAlreadyStarted is returned when Run is called on a Spider twice.
	ErrAlreadyStarted = errors.New("spider already started")

	// ErrUnsupportedContent is wrapped when a response is not text.
	ErrUnsupportedContent = errors.New("unsupported content type")

	// ErrInvalidEncoding is wrapped when a body cannot be decoded as text.
	ErrInvalidEncoding = errors.New("response body is not valid text")
)

// ErrorClass categorizes fetch and parse failures.
type ErrorClass int

const (
	// ClassNone means no error.
	ClassNone ErrorClass = iota

	// ClassHTTP is an HTTP error status (4xx, 5xx).
	ClassHTTP

	// ClassDecode is a body that cannot be decoded as text.
	ClassDecode

	// ClassParse is a body that cannot be parsed as HTML.
	ClassParse

	// ClassNetwork is a transport failure (DNS, refused, reset, timeout).
	ClassNetwork

	// ClassCertificate is a TLS or certificate validation failure.
	ClassCertificate

	// ClassUnknown is any other error.
	ClassUnknown
)

// String returns the lowercase name of the class, used as a metric label.
func (c ErrorClass) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassHTTP:
		return "http"
	case ClassDecode:
		return "decode"
	case ClassParse:
		return "parse"
	case ClassNetwork:
		return "network"
	case ClassCertificate:
		return "certificate"
	default:
		return "unknown"
	}
}

// Recoverable reports whether an error of this class only costs the URL
// that produced it.
func (c ErrorClass) Recoverable() bool {
	return c == ClassHTTP || c == ClassDecode || c == ClassParse
}

// FetchError describes a failed fetch or parse of one URL.
type FetchError struct {
	// Class is the error category.
	Class ErrorClass

	// URL is the URL being fetched.
	URL string

	// StatusCode is the HTTP status for ClassHTTP errors.
	StatusCode int

	// Err is the underlying error.
	Err error
}

// Error implements error.
func (e *FetchError) Error() string {
	if e.Class == ClassHTTP {
		return fmt.Sprintf("fetch %s: HTTP status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %s error: %v", e.URL, e.Class, e.Err)
}

// Unwrap returns the underlying error.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Fatal reports whether the error should terminate the whole crawl.
func (e *FetchError) Fatal() bool {
	return !e.Class.Recoverable()
}

// ClassOf returns the ErrorClass of err. A *FetchError anywhere in the chain
// supplies its own class; other errors are classified by inspection.
func ClassOf(err error) ErrorClass {
	if err == nil {
		return ClassNone
	}

	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Class
	}

	return classifyTransportError(err)
}

// classifyTransportError maps an error returned by http.Client.Do.
func classifyTransportError(err error) ErrorClass {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		// A client timeout also wraps DeadlineExceeded; it is reported
		// as a net.Error with Timeout() below.
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() && !errors.Is(err, context.Canceled) {
			return ClassNetwork
		}
		return ClassUnknown
	}

	if isCertificateError(err) {
		return ClassCertificate
	}

	var ne net.Error
	if errors.As(err, &ne) {
		return ClassNetwork
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return ClassNetwork
	}

	return ClassUnknown
}

// isCertificateError reports whether err is a TLS handshake or certificate
// validation failure.
func isCertificateError(err error) bool {
	var verifyErr *tls.CertificateVerificationError
	if errors.As(err, &verifyErr) {
		return true
	}
	var unknownAuthority x509.UnknownAuthorityError
	if errors.As(err, &unknownAuthority) {
		return true
	}
	var invalid x509.CertificateInvalidError
	if errors.As(err, &invalid) {
		return true
	}
	var hostname x509.HostnameError
	if errors.As(err, &hostname) {
		return true
	}
	var record tls.RecordHeaderError
	return errors.As(err, &record)
}
