// Package authref turns a declarative credential reference into a concrete
// request augmentation. Only environment variable names are ever recorded;
// resolved values stay inside the returned Resolution.
package authref

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Scheme selects how a credential is attached to an outbound request.
type Scheme string

// Supported schemes.
const (
	SchemeNone       Scheme = "none"
	SchemeBearer     Scheme = "bearer"
	SchemeBasic      Scheme = "basic"
	SchemeHeader     Scheme = "header"
	SchemeQueryParam Scheme = "query_param"
)

// ErrCredentialMissing is matched by every resolution failure.
var ErrCredentialMissing = errors.New("credential missing")

// Ref references a secret held in the environment.
type Ref struct {
	Scheme     Scheme `json:"scheme" yaml:"scheme" validate:"omitempty,oneof=none bearer basic header query_param"`
	Env        string `json:"env,omitempty" yaml:"env,omitempty" validate:"required_unless=Scheme none"`
	HeaderName string `json:"header_name,omitempty" yaml:"header_name,omitempty" validate:"required_if=Scheme header"`
	ParamName  string `json:"param_name,omitempty" yaml:"param_name,omitempty" validate:"required_if=Scheme query_param"`
}

// Env is the environment a Ref is resolved against.
type Env interface {
	Lookup(name string) (string, bool)
}

// MissingError reports why a credential could not be resolved. It carries the
// variable name only.
type MissingError struct {
	Env    string
	Scheme Scheme
	Reason string
}

func (e *MissingError) Error() string {
	if e.Env == "" {
		return fmt.Sprintf("credential missing for scheme %s: %s", e.Scheme, e.Reason)
	}
	return fmt.Sprintf("credential missing for scheme %s (env=%s): %s", e.Scheme, e.Env, e.Reason)
}

// Is makes errors.Is(err, ErrCredentialMissing) true.
func (e *MissingError) Is(target error) bool {
	return target == ErrCredentialMissing
}

// Resolution is the augmentation derived from a Ref.
type Resolution struct {
	header string
	query  string
	value  string
}

// None reports whether the resolution adds nothing to a request.
func (r Resolution) None() bool {
	return r.header == "" && r.query == ""
}

// HeaderName is the header this resolution sets, if any.
func (r Resolution) HeaderName() string { return r.header }

// ParamName is the query parameter this resolution sets, if any.
func (r Resolution) ParamName() string { return r.query }

// Apply attaches the credential to req.
func (r Resolution) Apply(req *http.Request) {
	if r.header != "" {
		req.Header.Set(r.header, r.value)
	}
	if r.query != "" {
		q := req.URL.Query()
		q.Set(r.query, r.value)
		req.URL.RawQuery = q.Encode()
	}
}

// String never includes the secret value.
func (r Resolution) String() string {
	switch {
	case r.header != "":
		return "header:" + r.header
	case r.query != "":
		return "query:" + r.query
	default:
		return "none"
	}
}

// Resolve derives the augmentation for ref. A nil ref or scheme none yields an
// empty Resolution. Failures are *MissingError values.
func Resolve(ref *Ref, env Env) (Resolution, error) {
	if ref == nil || ref.Scheme == "" || ref.Scheme == SchemeNone {
		return Resolution{}, nil
	}

	name := strings.TrimSpace(ref.Env)
	missing := func(reason string) (Resolution, error) {
		return Resolution{}, &MissingError{Env: name, Scheme: ref.Scheme, Reason: reason}
	}

	if name == "" {
		return missing("no env var configured")
	}

	// Header schemes send the value as stored; only query parameters are
	// trimmed, since whitespace there would be percent-encoded into the URL.
	value, ok := env.Lookup(name)
	if ref.Scheme == SchemeQueryParam {
		value = strings.TrimSpace(value)
	}
	if !ok || value == "" {
		return missing("env var not set")
	}

	switch ref.Scheme {
	case SchemeBearer:
		return Resolution{header: "Authorization", value: "Bearer " + value}, nil
	case SchemeBasic:
		if !strings.Contains(value, ":") {
			return missing("value is not user:pass")
		}
		encoded := base64.StdEncoding.EncodeToString([]byte(value))
		return Resolution{header: "Authorization", value: "Basic " + encoded}, nil
	case SchemeHeader:
		header := strings.TrimSpace(ref.HeaderName)
		if header == "" {
			return missing("header_name not set")
		}
		return Resolution{header: header, value: value}, nil
	case SchemeQueryParam:
		param := strings.TrimSpace(ref.ParamName)
		if param == "" {
			return missing("param_name not set")
		}
		return Resolution{query: param, value: value}, nil
	default:
		return missing("unsupported scheme")
	}
}

// Present reports whether ref would resolve. It returns nil when ref needs no
// credential, matching the admin listing's tri-state field.
func Present(ref *Ref, env Env) *bool {
	if ref == nil || ref.Scheme == "" || ref.Scheme == SchemeNone {
		return nil
	}
	_, err := Resolve(ref, env)
	ok := err == nil
	return &ok
}
