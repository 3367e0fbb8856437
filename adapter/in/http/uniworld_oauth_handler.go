package http

import (
	"fmt"
	"html/template"
	"strings"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"

	"uniworld_server/core/domain"
	"uniworld_server/core/port/in"
	"uniworld_server/pkg/apperr"
	"uniworld_server/pkg/logger"
	"uniworld_server/pkg/response"
)

// OAuthHandler exposes the credential lifecycle endpoints.
type OAuthHandler struct {
	oauth       in.OAuthUseCase
	frontendURL string
}

func NewOAuthHandler(oauth in.OAuthUseCase, frontendURL string) *OAuthHandler {
	return &OAuthHandler{oauth: oauth, frontendURL: frontendURL}
}

// Register mounts the routes. The callback lives outside the
// authenticated API group because providers redirect to it without a
// bearer token; the state binds it to the user who started the flow.
func (h *OAuthHandler) Register(api fiber.Router, public fiber.Router) {
	oauth := api.Group("/oauth")
	oauth.Get("/tokens", h.TokenStatuses)
	oauth.Post("/tokens/refresh", h.Refresh)
	oauth.Get("/:provider/connect", h.Connect)
	oauth.Delete("/:provider", h.Disconnect)

	public.Get("/oauth/:provider/callback", h.Callback)
}

// Connect issues the consent URL for the popup flow.
func (h *OAuthHandler) Connect(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	provider, err := providerParam(c)
	if err != nil {
		return err
	}

	authURL, state, err := h.oauth.BeginConnect(c.Context(), userID, provider)
	if err != nil {
		return err
	}

	return response.OK(c, fiber.Map{
		"auth_url": authURL,
		"state":    state,
	})
}

// Callback handles the provider redirect. It always answers with a
// small HTML page that posts the outcome to the opener window and
// closes itself, so the popup flow works without any redirect chain.
func (h *OAuthHandler) Callback(c *fiber.Ctx) error {
	code := c.Query("code")
	state := c.Query("state")
	errorParam := c.Query("error")

	if errorParam != "" {
		logger.WithField("oauth_error", errorParam).
			Warn("provider returned an error on callback: %s", c.Query("error_description"))
		return h.popupResult(c, "", false, errorParam)
	}
	if code == "" {
		return h.popupResult(c, "", false, "missing_code")
	}
	if state == "" {
		return h.popupResult(c, "", false, "missing_state")
	}

	provider, err := h.oauth.CompleteConnect(c.Context(), state, code)
	if err != nil {
		logger.WithError(err).Error("oauth callback failed")
		return h.popupResult(c, provider, false, string(apperr.CodeOf(err)))
	}

	return h.popupResult(c, provider, true, "")
}

// TokenStatuses reports connection state per provider. Raw tokens
// never appear in the response.
func (h *OAuthHandler) TokenStatuses(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}

	statuses, err := h.oauth.TokenStatuses(c.Context(), userID)
	if err != nil {
		return err
	}
	return response.OK(c, fiber.Map{"tokens": statuses})
}

type refreshRequest struct {
	Provider string `json:"provider"`
}

// Refresh forces a token refresh regardless of expiry.
func (h *OAuthHandler) Refresh(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}

	var req refreshRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.InvalidInput("invalid request body")
	}
	provider, ok := domain.ParseProvider(req.Provider)
	if !ok {
		return apperr.UnsupportedProvider(req.Provider)
	}

	status, err := h.oauth.ForceRefresh(c.Context(), userID, provider)
	if err != nil {
		return err
	}
	return response.OK(c, status)
}

// Disconnect revokes and deletes the credential.
func (h *OAuthHandler) Disconnect(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}
	provider, err := providerParam(c)
	if err != nil {
		return err
	}

	if err := h.oauth.Disconnect(c.Context(), userID, provider); err != nil {
		return err
	}
	return response.Message(c, fmt.Sprintf("%s account disconnected", provider))
}

// ===========================================================================
// Popup response
// ===========================================================================

// popupHTML posts the result to the opener and closes the window. The
// target origin is pinned to the frontend, never "*". Payload and
// origin arrive pre-marshaled as JSON; Marshal's HTML escaping keeps
// them safe inside the script block.
const popupHTML = `<!DOCTYPE html>
<html>
<head><title>Connecting...</title></head>
<body>
<script>
  (function() {
    var payload = {{.Payload}};
    if (window.opener) {
      window.opener.postMessage(payload, {{.Origin}});
    }
    window.close();
  })();
</script>
<p>{{.Text}} You can close this window.</p>
</body>
</html>`

var popupTemplate = template.Must(template.New("popup").Parse(popupHTML))

type popupPayload struct {
	Type     string `json:"type"`
	Provider string `json:"provider"`
	Success  bool   `json:"success"`
	Error    string `json:"error"`
}

func (h *OAuthHandler) popupResult(c *fiber.Ctx, provider domain.Provider, success bool, errCode string) error {
	payload, err := json.Marshal(popupPayload{
		Type:     "oauth_success",
		Provider: provider.String(),
		Success:  success,
		Error:    errCode,
	})
	if err != nil {
		return apperr.Internal("encode callback payload", err)
	}
	origin, err := json.Marshal(h.frontendURL)
	if err != nil {
		return apperr.Internal("encode callback origin", err)
	}

	data := struct {
		Payload template.JS
		Origin  template.JS
		Text    string
	}{
		Payload: template.JS(payload),
		Origin:  template.JS(origin),
		Text:    "Account connected.",
	}
	if !success {
		data.Text = "Connection failed."
	}

	var buf strings.Builder
	if err := popupTemplate.Execute(&buf, data); err != nil {
		return apperr.Internal("render callback page", err)
	}

	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.SendString(buf.String())
}
