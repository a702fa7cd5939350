// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"github.com/pion/webrtc/v4"

	"github.com/bureau-foundation/dcgate/lib/config"
)

// ICEServers converts configured ICE servers into pion's form. Order is
// preserved: pion tries them in sequence. An empty list yields host
// candidates only, which is enough for same-machine and same-LAN peers.
func ICEServers(servers []config.ICEServer) []webrtc.ICEServer {
	if len(servers) == 0 {
		return nil
	}
	converted := make([]webrtc.ICEServer, 0, len(servers))
	for _, server := range servers {
		converted = append(converted, webrtc.ICEServer{
			URLs:       append([]string(nil), server.URLs...),
			Username:   server.Username,
			Credential: server.Credential,
		})
	}
	return converted
}
