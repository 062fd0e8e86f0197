package relay

import (
	"net"
	"time"

	"github.com/pion/turn/v4"

	"github.com/inercia/violet/pkg/config"
)

// user is a configured TURN account with its precomputed long-term key.
type user struct {
	key   []byte
	quota int
}

func buildUsers(creds []config.Credential, realm string) map[string]user {
	users := make(map[string]user, len(creds))
	for _, c := range creds {
		users[c.Username] = user{
			key:   turn.GenerateAuthKey(c.Username, realm, c.Password),
			quota: c.Quota,
		}
	}
	return users
}

// authenticate is the TURN long-term credential callback. Throttled clients
// are rejected before the user is looked up.
func (s *Server) authenticate(username, realm string, srcAddr net.Addr) ([]byte, bool) {
	if s.cfg.STUNOnly {
		return nil, false
	}

	if !s.limiter.Allow(hostOf(srcAddr), time.Now()) {
		s.metrics.authThrottled.Inc()
		s.logger.Debug("Throttled authentication from %s", srcAddr)
		return nil, false
	}

	if realm != s.cfg.Realm {
		s.logger.Debug("Rejected %q from %s: unknown realm %q", username, srcAddr, realm)
		return nil, false
	}

	u, ok := s.users[username]
	if !ok {
		s.logger.Debug("Rejected unknown user %q from %s", username, srcAddr)
		return nil, false
	}
	return u.key, true
}

// admitAllocation is the TURN quota callback.
func (s *Server) admitAllocation(username, _ string, srcAddr net.Addr) bool {
	verdict := s.tracker.admit(username, s.cfg.MaxAllocations, s.users[username].quota)
	if verdict == quotaOK {
		return true
	}
	s.metrics.quotaRejections.WithLabelValues(string(verdict)).Inc()
	s.logger.Info("Rejected allocation for %q from %s: %s", username, srcAddr, verdict)
	return false
}

func (s *Server) eventHandler() turn.EventHandler {
	return turn.EventHandler{
		OnAuth: func(srcAddr, _ net.Addr, _, username, _, method string, verdict bool) {
			result := "rejected"
			if verdict {
				result = "accepted"
			}
			s.metrics.authAttempts.WithLabelValues(method, result).Inc()
			if !verdict {
				s.logger.Debug("Authentication of %q for %s from %s failed", username, method, srcAddr)
			}
		},
		OnAllocationCreated: func(srcAddr, _ net.Addr, _, username, _ string, relayAddr net.Addr, _ int) {
			s.tracker.created(username)
			s.metrics.allocationsCreated.Inc()
			s.logger.Info("Allocation for %q from %s relayed at %s", username, srcAddr, relayAddr)
		},
		OnAllocationDeleted: func(srcAddr, _ net.Addr, _, username, _ string) {
			s.tracker.deleted(username)
			s.metrics.allocationsDeleted.Inc()
			s.logger.Info("Allocation for %q from %s removed", username, srcAddr)
		},
		OnAllocationError: func(srcAddr, _ net.Addr, _, message string) {
			s.metrics.allocationErrors.Inc()
			s.logger.Debug("Request from %s failed: %s", srcAddr, message)
		},
	}
}
