package api

import "net/http"

// wellKnownManifest is the static JSON manifest for /.well-known/toolshelf.json.
const wellKnownManifest = `{
  "name": "Toolshelf",
  "description": "Shared team tool shelves over a curated catalog",
  "version": "0.1.0",
  "api_base": "/api/v1",
  "auth": {
    "type": "bearer",
    "header": "Authorization"
  },
  "endpoints": {
    "teams": "/api/v1/teams",
    "catalog": "/api/v1/catalog",
    "recent": "/api/v1/me/recent",
    "pinned": "/api/v1/me/pinned",
    "invite": "/functions/v1/invite-member",
    "touch": "/rpc/touch_tool"
  },
  "health": "/health"
}`

// WellKnownHandler returns the static Toolshelf well-known manifest.
func WellKnownHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(wellKnownManifest))
}
