package drm

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	host     = "speech.platform.bing.com"
	basePath = "/consumer/speech/synthesize/readaloud"

	// TrustedClientToken identifies the Edge Read Aloud client class to
	// the service. It is fixed across all installs and not a secret.
	TrustedClientToken = "6A5AA1D4EAFF4E9FB37E23D68491D6F4"

	chromiumFullVersion = "130.0.2849.68"

	// SecMSGECVersion accompanies every token.
	SecMSGECVersion = "1-" + chromiumFullVersion
)

// Headers the service expects from the Read Aloud client. Callers may
// override both per connection.
const (
	DefaultOrigin = "chrome-extension://jdiccldimpdaibmpdkjnbmckianbfold"

	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) " +
		"Chrome/130.0.0.0 Safari/537.36 Edg/130.0.0.0"
)

// ConnectionURL builds the synthesis endpoint URL for one connection,
// stamped with a token for the current window.
func ConnectionURL(sk *Skew, connectionID string) string {
	return fmt.Sprintf(
		"wss://%s%s/edge/v1?TrustedClientToken=%s&ConnectionId=%s&Sec-MS-GEC=%s&Sec-MS-GEC-Version=%s",
		host, basePath, TrustedClientToken, connectionID, sk.Token(), SecMSGECVersion,
	)
}

// VoiceListURL builds the voice metadata endpoint URL with the same token
// parameters and no connection id.
func VoiceListURL(sk *Skew) string {
	return fmt.Sprintf(
		"https://%s%s/voices/list?TrustedClientToken=%s&Sec-MS-GEC=%s&Sec-MS-GEC-Version=%s",
		host, basePath, TrustedClientToken, sk.Token(), SecMSGECVersion,
	)
}

// NewConnectionID returns the 32 hex character connection id shape the
// service expects: a UUID with the dashes stripped.
func NewConnectionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
