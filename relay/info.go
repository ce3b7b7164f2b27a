package relay

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

const (
	infoContentType = "application/nostr+json"
	software        = "https://github.com/nostrsync/relay"
	negentropyNIP   = 77
)

// Info is the relay information document (NIP-11).
type Info struct {
	Name          string     `json:"name,omitempty"`
	Description   string     `json:"description,omitempty"`
	Contact       string     `json:"contact,omitempty"`
	Software      string     `json:"software"`
	Version       string     `json:"version,omitempty"`
	SupportedNIPs []int      `json:"supported_nips"`
	Limitation    Limitation `json:"limitation"`
}

// Limitation describes the limits the relay imposes on the clients.
type Limitation struct {
	MaxMessageLength int64 `json:"max_message_length"`
	MaxSubscriptions int   `json:"max_subscriptions"`
}

func (s *Server) info() Info {
	return Info{
		Name:          s.cfg.Name,
		Description:   s.cfg.Description,
		Contact:       s.cfg.Contact,
		Software:      software,
		Version:       s.version,
		SupportedNIPs: []int{negentropyNIP},
		Limitation: Limitation{
			MaxMessageLength: s.cfg.MaxMessageSize,
			MaxSubscriptions: s.cfg.MaxSessions,
		},
	}
}

func wantsInfo(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), infoContentType)
}

func (s *Server) serveInfo(w http.ResponseWriter) {
	w.Header().Set("Content-Type", infoContentType)
	if err := json.NewEncoder(w).Encode(s.info()); err != nil {
		s.logger.Debug("failed to write relay info", zap.Error(err))
	}
}
