package relay

import (
	"net"

	"github.com/inercia/violet/pkg/common"
)

// peerVars are the variables available to peer permission expressions.
var peerVars = map[string]common.VarType{
	"client":        common.VarString,
	"peer":          common.VarString,
	"peer_loopback": common.VarBool,
	"peer_private":  common.VarBool,
}

// CompilePermissions compiles the peer permission expressions.
//
// Parameters:
//   - exprs: CEL expressions over client, peer, peer_loopback and peer_private
//   - logger: Used for tracing rejected peers; may be nil
//
// Returns:
//   - The compiled policy, which admits every peer when exprs is empty
//   - An error if an expression does not compile to a boolean
func CompilePermissions(exprs []string, logger *common.Logger) (*common.CompiledConstraints, error) {
	return common.NewCompiledConstraints(exprs, peerVars, logger)
}

// permissionArgs builds the evaluation arguments for a client and a peer.
func permissionArgs(clientAddr net.Addr, peerIP net.IP) map[string]interface{} {
	return map[string]interface{}{
		"client":        hostOf(clientAddr),
		"peer":          peerIP.String(),
		"peer_loopback": peerIP.IsLoopback(),
		"peer_private":  peerIP.IsPrivate(),
	}
}

// permissionHandler decides whether clientAddr may reach peerIP through the relay.
func (s *Server) permissionHandler(clientAddr net.Addr, peerIP net.IP) bool {
	ok, err := s.permissions.Evaluate(permissionArgs(clientAddr, peerIP))
	if err != nil {
		s.logger.Warn("Peer permission for %s -> %s failed: %v", clientAddr, peerIP, err)
		ok = false
	}
	if !ok {
		s.metrics.permissionDenials.Inc()
		s.logger.Debug("Denied permission for %s to peer %s", clientAddr, peerIP)
	}
	return ok
}

// hostOf returns the IP part of a network address, or its string form.
func hostOf(addr net.Addr) string {
	switch a := addr.(type) {
	case *net.UDPAddr:
		return a.IP.String()
	case *net.TCPAddr:
		return a.IP.String()
	case nil:
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
