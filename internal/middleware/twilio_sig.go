package middleware

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/twilio/twilio-go/client"
)

const twilioParamsKey = "twilioParams"

// TwilioAuth validates Twilio webhook requests using the X-Twilio-Signature header.
// publicBaseURL is the externally visible origin Twilio was configured with; when empty the
// URL is rebuilt from the request.
func TwilioAuth(getAuthToken func() string, publicBaseURL string) echo.MiddlewareFunc {
	publicBaseURL = strings.TrimRight(publicBaseURL, "/")
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authToken := getAuthToken()
			if authToken == "" {
				return c.String(http.StatusInternalServerError, "TWILIO_AUTH_TOKEN not configured")
			}

			params, err := readForm(c.Request())
			if err != nil {
				return c.String(http.StatusBadRequest, "Failed to parse form data")
			}

			signature := c.Request().Header.Get("X-Twilio-Signature")
			requestURL := BuildURL(c.Request(), publicBaseURL, c.Request().URL.RequestURI())

			validator := client.NewRequestValidator(authToken)
			if !validator.Validate(requestURL, params, signature) {
				return c.String(http.StatusUnauthorized, "Invalid Twilio signature")
			}

			c.Set(twilioParamsKey, params)
			return next(c)
		}
	}
}

// TwilioParams returns the webhook form fields, parsing the body if TwilioAuth did not run.
func TwilioParams(c echo.Context) (map[string]string, error) {
	if p, ok := c.Get(twilioParamsKey).(map[string]string); ok {
		return p, nil
	}
	p, err := readForm(c.Request())
	if err != nil {
		return nil, err
	}
	c.Set(twilioParamsKey, p)
	return p, nil
}

func readForm(r *http.Request) (map[string]string, error) {
	bodyBytes, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	formData, err := url.ParseQuery(string(bodyBytes))
	if err != nil {
		return nil, err
	}
	params := make(map[string]string, len(formData))
	for key, values := range formData {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}
	return params, nil
}

// BuildURL returns the absolute URL Twilio used (or should use) for path.
func BuildURL(r *http.Request, publicBaseURL, path string) string {
	if publicBaseURL != "" {
		return strings.TrimRight(publicBaseURL, "/") + path
	}
	scheme := "https"
	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
		if strings.Contains(host, "localhost") || strings.Contains(host, "127.0.0.1") {
			scheme = "http"
		}
	}
	return fmt.Sprintf("%s://%s%s", scheme, host, path)
}
