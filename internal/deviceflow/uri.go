package deviceflow

import (
	"net/url"
	"path"

	"github.com/wrale/oauth2-device-authz/internal/validation"
)

// buildVerificationURIs creates the verification URIs per RFC 8628 sections
// 3.2 and 3.3.1: the base URI users visit to enter their code, and the
// complete URI carrying the code for non-textual transmission.
func (f *Flow) buildVerificationURIs(userCode string) (string, string) {
	baseURL, err := url.Parse(f.baseURL)
	if err != nil {
		return "", ""
	}

	baseURL.Path = path.Join(baseURL.Path, "device")
	verificationURI := baseURL.String()

	completeURL := *baseURL
	q := completeURL.Query()
	// Display format per RFC 8628 section 6.1
	q.Set("code", validation.FormatCode(userCode))
	completeURL.RawQuery = q.Encode()

	return verificationURI, completeURL.String()
}
