package drm

import (
	"net/http"
	"net/url"
	"regexp"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestConnectionURL(t *testing.T) {
	sk := skewAt(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))

	u, err := url.Parse(ConnectionURL(sk, "00000000000000000000000000000001"))
	if err != nil {
		t.Fatal(err)
	}

	if u.Scheme != "wss" {
		t.Fatalf("scheme = %q", u.Scheme)
	}
	if u.Host != "speech.platform.bing.com" {
		t.Fatalf("host = %q", u.Host)
	}
	if u.Path != "/consumer/speech/synthesize/readaloud/edge/v1" {
		t.Fatalf("path = %q", u.Path)
	}

	want := url.Values{
		"TrustedClientToken": {TrustedClientToken},
		"ConnectionId":       {"00000000000000000000000000000001"},
		"Sec-MS-GEC":         {sk.Token()},
		"Sec-MS-GEC-Version": {SecMSGECVersion},
	}
	if diff := cmp.Diff(want, u.Query()); diff != "" {
		t.Fatalf("query mismatch (-want +got):\n%s", diff)
	}
}

func TestVoiceListURL(t *testing.T) {
	sk := skewAt(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))

	u, err := url.Parse(VoiceListURL(sk))
	if err != nil {
		t.Fatal(err)
	}

	if u.Scheme != "https" {
		t.Fatalf("scheme = %q", u.Scheme)
	}
	if u.Path != "/consumer/speech/synthesize/readaloud/voices/list" {
		t.Fatalf("path = %q", u.Path)
	}

	want := url.Values{
		"TrustedClientToken": {TrustedClientToken},
		"Sec-MS-GEC":         {sk.Token()},
		"Sec-MS-GEC-Version": {SecMSGECVersion},
	}
	if diff := cmp.Diff(want, u.Query()); diff != "" {
		t.Fatalf("query mismatch (-want +got):\n%s", diff)
	}
}

func TestConnectionURLTokenTracksSkew(t *testing.T) {
	local := time.Date(2024, 5, 1, 12, 4, 0, 0, time.UTC)
	sk := skewAt(local)

	before, _ := url.Parse(ConnectionURL(sk, NewConnectionID()))

	if err := sk.Adjust(local.Add(2 * time.Minute).Format(http.TimeFormat)); err != nil {
		t.Fatal(err)
	}
	after, _ := url.Parse(ConnectionURL(sk, NewConnectionID()))

	if before.Query().Get("Sec-MS-GEC") == after.Query().Get("Sec-MS-GEC") {
		t.Fatal("URL token did not change after skew correction across windows")
	}
}

func TestNewConnectionID(t *testing.T) {
	shape := regexp.MustCompile(`^[0-9a-f]{32}$`)

	a, b := NewConnectionID(), NewConnectionID()
	if !shape.MatchString(a) {
		t.Fatalf("connection id %q is not 32 lowercase hex chars", a)
	}
	if a == b {
		t.Fatal("connection ids collided")
	}
}
