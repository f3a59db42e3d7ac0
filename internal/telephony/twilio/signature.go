package twilio

import (
	"net/http"
	"strings"

	twilioclient "github.com/twilio/twilio-go/client"
)

// SignatureHeader carries the HMAC Twilio computes over each webhook.
const SignatureHeader = "X-Twilio-Signature"

// SignatureValidator checks that webhook requests were signed with the
// account auth token. Twilio signs the public URL it called, which differs
// from r.Host behind a proxy, so that URL is configured explicitly.
type SignatureValidator struct {
	validator twilioclient.RequestValidator
	publicURL string
}

// NewSignatureValidator creates a validator for requests addressed to publicURL.
func NewSignatureValidator(authToken, publicURL string) *SignatureValidator {
	return &SignatureValidator{
		validator: twilioclient.NewRequestValidator(authToken),
		publicURL: strings.TrimSuffix(publicURL, "/"),
	}
}

// Valid reports whether r carries a correct signature for its URL and form.
func (v *SignatureValidator) Valid(r *http.Request) bool {
	signature := r.Header.Get(SignatureHeader)
	if signature == "" {
		return false
	}
	if err := r.ParseForm(); err != nil {
		return false
	}

	params := make(map[string]string, len(r.PostForm))
	for key, values := range r.PostForm {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}
	return v.validator.Validate(v.publicURL+r.URL.RequestURI(), params, signature)
}
