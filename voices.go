package readaloud

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/edgewire/readaloud/drm"
)

// Voice is one entry of the service's voice inventory.
type Voice struct {
	Name           string   `json:"Name"`
	ShortName      string   `json:"ShortName"`
	Gender         string   `json:"Gender"`
	Locale         string   `json:"Locale"`
	SuggestedCodec string   `json:"SuggestedCodec"`
	FriendlyName   string   `json:"FriendlyName"`
	Status         string   `json:"Status"`
	VoiceTag       VoiceTag `json:"VoiceTag"`
}

type VoiceTag struct {
	ContentCategories  []string `json:"ContentCategories"`
	VoicePersonalities []string `json:"VoicePersonalities"`
}

// Voices fetches the voice inventory from the metadata endpoint.
//
// A 401 or 403 means the token's time window missed the server's clock:
// the server's Date header is folded into sk and the request retried once
// with a fresh token. hc may be nil for http.DefaultClient.
func Voices(ctx context.Context, sk *drm.Skew, hc *http.Client) ([]Voice, error) {
	if hc == nil {
		hc = http.DefaultClient
	}

	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, drm.VoiceListURL(sk), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Origin", drm.DefaultOrigin)
		req.Header.Set("User-Agent", drm.DefaultUserAgent)

		resp, err := hc.Do(req)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			date := resp.Header.Get("Date")
			resp.Body.Close()
			if attempt == 0 && date != "" {
				if err := sk.Adjust(date); err == nil {
					continue
				}
			}
			return nil, fmt.Errorf("readaloud: voice list rejected with status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("readaloud: voice list returned status %d", resp.StatusCode)
		}

		var voices []Voice
		err = json.NewDecoder(resp.Body).Decode(&voices)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("readaloud: decoding voice list: %w", err)
		}
		return voices, nil
	}
}
