package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	twilioClient "github.com/twilio/twilio-go/client"

	"github.com/chadiek/aura-companion/internal/observability"
)

// TwilioParamsKey is the echo context key holding the verified form params.
const TwilioParamsKey = "twilioParams"

// TwilioAuth validates Twilio webhook requests using the X-Twilio-Signature
// header. publicBaseURL, when set, replaces the scheme and host Twilio signed.
func TwilioAuth(getAuthToken func() string, publicBaseURL string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authToken := getAuthToken()
			if authToken == "" {
				return c.String(http.StatusInternalServerError, "TWILIO_AUTH_TOKEN not configured")
			}

			req := c.Request()
			bodyBytes, err := io.ReadAll(req.Body)
			if err != nil {
				return c.String(http.StatusBadRequest, "Failed to read request body")
			}
			req.Body = io.NopCloser(bytes.NewReader(bodyBytes))

			formData, err := url.ParseQuery(string(bodyBytes))
			if err != nil {
				return c.String(http.StatusBadRequest, "Failed to parse form data")
			}
			params := make(map[string]string, len(formData))
			for key, values := range formData {
				if len(values) > 0 {
					params[key] = values[0]
				}
			}

			signature := req.Header.Get("X-Twilio-Signature")
			validator := twilioClient.NewRequestValidator(authToken)
			if signature == "" || !validator.Validate(SignedURL(req, publicBaseURL), params, signature) {
				observability.LoggerFromContext(req.Context()).Warn("twilio signature rejected", "path", req.URL.Path)
				return c.String(http.StatusUnauthorized, "Invalid Twilio signature")
			}

			c.Set(TwilioParamsKey, params)
			return next(c)
		}
	}
}

// TwilioParams returns the params stored by TwilioAuth.
func TwilioParams(c echo.Context) map[string]string {
	params, _ := c.Get(TwilioParamsKey).(map[string]string)
	return params
}

// SignedURL reconstructs the absolute URL Twilio computed the signature over.
// Priority: publicBaseURL > X-Forwarded-* headers > request Host.
func SignedURL(req *http.Request, publicBaseURL string) string {
	base := strings.TrimRight(publicBaseURL, "/")
	if base == "" {
		proto := req.Header.Get("X-Forwarded-Proto")
		host := req.Header.Get("X-Forwarded-Host")
		if host == "" {
			host = req.Host
		}
		if proto == "" {
			proto = "https"
			if strings.HasPrefix(host, "localhost:") || strings.HasPrefix(host, "127.0.0.1:") {
				proto = "http"
			}
		}
		base = proto + "://" + host
	}
	return base + req.URL.RequestURI()
}
