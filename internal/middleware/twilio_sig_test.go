package middleware

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sign computes the signature the way Twilio documents it.
func sign(token, fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	data := fullURL
	for _, k := range keys {
		data += k + form.Get(k)
	}
	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func serve(t *testing.T, token, base string, req *http.Request) (*httptest.ResponseRecorder, map[string]string) {
	t.Helper()
	e := echo.New()
	var seen map[string]string
	e.POST("/twilio/voice", func(c echo.Context) error {
		p, err := TwilioParams(c)
		require.NoError(t, err)
		seen = p
		return c.NoContent(http.StatusOK)
	}, TwilioAuth(func() string { return token }, base))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec, seen
}

func formRequest(form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/twilio/voice", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	req.Host = "voice.example.com"
	return req
}

func TestTwilioAuth(t *testing.T) {
	form := url.Values{"CallSid": {"CA123"}, "From": {"+15145859691"}}
	const token = "secret"

	t.Run("valid signature", func(t *testing.T) {
		req := formRequest(form)
		req.Header.Set("X-Twilio-Signature", sign(token, "https://voice.example.com/twilio/voice", form))
		rec, params := serve(t, token, "", req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "CA123", params["CallSid"])
		assert.Equal(t, "+15145859691", params["From"])
	})

	t.Run("public base url", func(t *testing.T) {
		req := formRequest(form)
		req.Header.Set("X-Twilio-Signature", sign(token, "https://public.example.org/twilio/voice", form))
		rec, _ := serve(t, token, "https://public.example.org/", req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("bad signature", func(t *testing.T) {
		req := formRequest(form)
		req.Header.Set("X-Twilio-Signature", sign("other", "https://voice.example.com/twilio/voice", form))
		rec, params := serve(t, token, "", req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Nil(t, params)
	})

	t.Run("no token configured", func(t *testing.T) {
		rec, _ := serve(t, "", "", formRequest(form))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestBuildURL(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/x", nil)
	req.Host = "localhost:8080"
	assert.Equal(t, "http://localhost:8080/twilio/gather", BuildURL(req, "", "/twilio/gather"))

	req.Header.Set("X-Forwarded-Host", "abc.ngrok.io")
	assert.Equal(t, "https://abc.ngrok.io/twilio/gather", BuildURL(req, "", "/twilio/gather"))
	assert.Equal(t, "https://clinic.example/twilio/gather", BuildURL(req, "https://clinic.example/", "/twilio/gather"))
}
