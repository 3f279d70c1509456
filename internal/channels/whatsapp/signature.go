package whatsapp

import (
	"errors"
	"net/url"

	"github.com/twilio/twilio-go/client"
)

// SignatureHeader carries the provider's request signature.
const SignatureHeader = "X-Twilio-Signature"

// signatureCheck validates provider signatures for one public webhook URL.
type signatureCheck struct {
	url       string
	validator client.RequestValidator
}

func newSignatureCheck(authToken, publicURL string) *signatureCheck {
	return &signatureCheck{url: publicURL, validator: client.NewRequestValidator(authToken)}
}

// verify reports why signature does not match params. The error is safe to
// log and never includes the expected signature.
func (s *signatureCheck) verify(params url.Values, signature string) error {
	if signature == "" {
		return errors.New("webhook signature: header is missing")
	}
	// Provider form fields are single-valued.
	flat := make(map[string]string, len(params))
	for k := range params {
		flat[k] = params.Get(k)
	}
	if !s.validator.Validate(s.url, flat, signature) {
		return errors.New("webhook signature: mismatch")
	}
	return nil
}
