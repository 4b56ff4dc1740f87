package attachments

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

// Remediation messages surfaced per failed file. Every failure names which
// fix applies: shrink the file, or repair the store configuration.
var (
	errTooLarge = fmt.Errorf("file exceeds the %d MiB limit; compress or split it", AbsoluteMax/(1024*1024))

	errStoreMisconfigured = fmt.Errorf("report store rejected the upload; fix the store configuration or reduce the file to %d KiB", InlineMax/1024)
)

// isAuthorizationError classifies blob-store failures that warrant the
// inline-tier fallback: denied credentials and cross-origin rejections, as
// opposed to transient transport faults or oversize payloads.
func isAuthorizationError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "Forbidden", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return true
		}
	}

	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		code := respErr.HTTPStatusCode()
		if code == http.StatusForbidden || code == http.StatusUnauthorized {
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "cors") || strings.Contains(msg, "preflight")
}
