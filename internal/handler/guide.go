package handler

import "net/http"

// oauthGuide はクライアント開発者向けのOAuth連携ガイド。
var oauthGuide = map[string]any{
	"title":       "TinyTasks OAuth Integration Guide",
	"version":     "2.0.0",
	"description": "How to authenticate against TinyTasks with Google OAuth and use the issued bearer token.",
	"endpoints": map[string]any{
		"start_oauth": map[string]any{
			"url":         "/auth/google",
			"method":      "GET",
			"description": "Starts the OAuth flow.",
			"parameters": map[string]any{
				"client_type": map[string]any{
					"type":     "string",
					"required": false,
					"options":  []string{"macos", "mcp", "web"},
					"default":  "web",
				},
				"redirect_uri": map[string]any{
					"type":        "string",
					"required":    false,
					"description": "http(s) URL to redirect to after login (client_type=web only).",
				},
			},
		},
		"callback": map[string]any{
			"url":    "/auth/google/callback",
			"method": "GET",
			"note":   "Called by Google. Responds according to client_type.",
		},
	},
	"client_types": map[string]any{
		"macos": map[string]string{
			"flow":     "GET /auth/google?client_type=macos",
			"response": "JSON with token and user for manual setup.",
		},
		"mcp": map[string]string{
			"flow":     "GET /auth/google?client_type=mcp",
			"response": "JSON with token, access_token and token_type.",
		},
		"web": map[string]string{
			"flow":     "GET /auth/google?client_type=web[&redirect_uri=URL]",
			"response": "Redirect to URL?token=...&user=... or JSON when no redirect_uri is given.",
		},
	},
	"usage": map[string]string{
		"header":        "Authorization: Bearer <token>",
		"validate":      "GET /auth/me",
		"list_tokens":   "GET /auth/tokens",
		"revoke":        "POST /auth/revoke (optional body {\"tokenId\": \"...\"})",
		"revoke_all":    "POST /auth/revoke-all",
		"token_expires": "never; revoke tokens you no longer use",
	},
}

// OAuthGuide は静的な連携ガイドを返す。
// GET /auth/oauth-guide
func (h *AuthHandler) OAuthGuide(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, oauthGuide)
}
