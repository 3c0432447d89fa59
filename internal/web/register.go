package web

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edbridge/annolti/internal/registry"
)

// handleRegister creates a registration for a new LMS install and returns
// the consumer key and shared secret the admin pastes into their LMS.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	lmsURL := strings.TrimSpace(r.PostForm.Get("lms_url"))
	email := strings.TrimSpace(r.PostForm.Get("email"))
	if lmsURL == "" || email == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"message": "lms_url and email are required",
		})
		return
	}
	if u, err := url.Parse(lmsURL); err != nil || u.Scheme == "" || u.Host == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"message": "lms_url must be an absolute URL",
		})
		return
	}

	developerKey := strings.TrimSpace(r.PostForm.Get("developer_key"))
	developerSecret := strings.TrimSpace(r.PostForm.Get("developer_secret"))
	// A developer key without its secret, or vice versa, is a paste error.
	if (developerKey == "") != (developerSecret == "") {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"message": "developer_key and developer_secret must be provided together",
		})
		return
	}

	inst := registry.ApplicationInstance{
		ConsumerKey:  "annolti-" + uuid.NewString(),
		SharedSecret: randomSecret(),
		LMSURL:       lmsURL,
		DeveloperKey: developerKey,
		// Provisioning is on for every new install; the flag exists for
		// legacy installs that predate it.
		ProvisioningEnabled: true,
	}
	if err := s.Registry.Create(r.Context(), inst, developerSecret); err != nil {
		s.writeJSONError(w, err)
		return
	}
	s.Log.Info("instance registered", // key only, never the secret
		zap.String("consumer_key", inst.ConsumerKey),
		zap.String("lms_url", lmsURL))

	writeJSON(w, http.StatusCreated, map[string]string{
		"consumer_key":     inst.ConsumerKey,
		"shared_secret":    inst.SharedSecret,
		"launch_url":       s.Cfg.PublicURL + "/lti_launches",
		"content_item_url": s.Cfg.PublicURL + "/content_item_selection",
	})
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err) // crypto/rand failure is unrecoverable
	}
	return hex.EncodeToString(b)
}
