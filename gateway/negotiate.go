// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pion/webrtc/v4"
)

var (
	// ErrNegotiationFailed is wrapped by every error Negotiate and
	// NegotiateDescription return. No session outlives a failed
	// negotiation.
	ErrNegotiationFailed = errors.New("negotiation failed")

	// ErrInvalidOffer marks offers that cannot be used at all: not
	// decodable, not of type offer, or rejected by pion as a remote
	// description. It wraps ErrNegotiationFailed.
	ErrInvalidOffer = fmt.Errorf("%w: invalid offer", ErrNegotiationFailed)

	// ErrClosed is returned once the gateway has been closed. It wraps
	// ErrNegotiationFailed.
	ErrClosed = fmt.Errorf("%w: gateway closed", ErrNegotiationFailed)
)

// Negotiate answers an offer encoded as the JSON session description
// browsers produce ({"type":"offer","sdp":"..."}) and returns the JSON
// answer. Every data channel the peer later opens is bridged to
// upstreamAddress.
//
// The answer carries the complete set of gathered candidates; there is
// no incremental candidate exchange. On success the session is live and
// registered, and it ends on its own when the peer connection fails or
// closes. On failure nothing is left behind.
func (g *Gateway) Negotiate(ctx context.Context, offer []byte, upstreamAddress string) ([]byte, error) {
	var description webrtc.SessionDescription
	if err := json.Unmarshal(offer, &description); err != nil {
		return nil, g.negotiationFailed(fmt.Errorf("%w: decoding offer: %w", ErrInvalidOffer, err))
	}

	s, answer, err := g.prepare(ctx, description, upstreamAddress)
	if err != nil {
		return nil, g.negotiationFailed(err)
	}

	encoded, err := json.Marshal(answer)
	if err != nil {
		s.teardown(reasonNegotiationFailed)
		return nil, g.negotiationFailed(fmt.Errorf("%w: encoding answer: %w", ErrNegotiationFailed, err))
	}

	if err := g.activate(s); err != nil {
		return nil, g.negotiationFailed(err)
	}
	return encoded, nil
}

// NegotiateDescription is Negotiate for callers that already hold a
// decoded session description.
func (g *Gateway) NegotiateDescription(ctx context.Context, offer webrtc.SessionDescription, upstreamAddress string) (webrtc.SessionDescription, error) {
	s, answer, err := g.prepare(ctx, offer, upstreamAddress)
	if err != nil {
		return webrtc.SessionDescription{}, g.negotiationFailed(err)
	}
	if err := g.activate(s); err != nil {
		return webrtc.SessionDescription{}, g.negotiationFailed(err)
	}
	return answer, nil
}

func (g *Gateway) negotiationFailed(err error) error {
	g.metrics.NegotiationFailures.Inc()
	g.logger.Warn("negotiation failed", "error", err)
	return err
}

// prepare runs the answer side of the offer/answer exchange up to a
// complete local description. The returned session has its observers
// installed and its dispatcher running but is not yet registered.
func (g *Gateway) prepare(ctx context.Context, offer webrtc.SessionDescription, upstreamAddress string) (*session, webrtc.SessionDescription, error) {
	var none webrtc.SessionDescription

	if g.isClosed() {
		return nil, none, ErrClosed
	}
	if offer.Type != webrtc.SDPTypeOffer {
		return nil, none, fmt.Errorf("%w: expected type offer, got %q", ErrInvalidOffer, offer.Type.String())
	}
	if upstreamAddress == "" {
		return nil, none, fmt.Errorf("%w: no upstream address", ErrNegotiationFailed)
	}

	peer, err := g.newPeerConnection()
	if err != nil {
		return nil, none, fmt.Errorf("%w: creating PeerConnection: %w", ErrNegotiationFailed, err)
	}

	s := newSession(g, g.nextSessionID(), upstreamAddress, peer.Close)
	go s.dispatch()

	// Both observers go in before the remote description so that no
	// state change or announced channel can slip past.
	peer.OnConnectionStateChange(s.handleConnectionState)
	peer.OnDataChannel(s.handleDataChannel)

	fail := func(err error) (*session, webrtc.SessionDescription, error) {
		s.teardown(reasonNegotiationFailed)
		return nil, none, err
	}

	if err := peer.SetRemoteDescription(offer); err != nil {
		return fail(fmt.Errorf("%w: setting remote description: %w", ErrInvalidOffer, err))
	}

	answer, err := peer.CreateAnswer(nil)
	if err != nil {
		return fail(fmt.Errorf("%w: creating SDP answer: %w", ErrNegotiationFailed, err))
	}

	gatherComplete := webrtc.GatheringCompletePromise(peer)
	if err := peer.SetLocalDescription(answer); err != nil {
		return fail(fmt.Errorf("%w: setting local description: %w", ErrNegotiationFailed, err))
	}

	var gatherTimeout <-chan time.Time
	if g.options.GatherTimeout > 0 {
		timer := time.NewTimer(g.options.GatherTimeout)
		defer timer.Stop()
		gatherTimeout = timer.C
	}

	select {
	case <-gatherComplete:
	case <-gatherTimeout:
		return fail(fmt.Errorf("%w: ICE gathering timed out after %s", ErrNegotiationFailed, g.options.GatherTimeout))
	case <-ctx.Done():
		return fail(fmt.Errorf("%w: waiting for ICE gathering: %w", ErrNegotiationFailed, ctx.Err()))
	}

	local := peer.LocalDescription()
	if local == nil {
		return fail(fmt.Errorf("%w: no local description after gathering", ErrNegotiationFailed))
	}
	return s, *local, nil
}

// activate registers a prepared session and starts its supervisor.
func (g *Gateway) activate(s *session) error {
	if err := g.register(s); err != nil {
		s.teardown(reasonNegotiationFailed)
		return err
	}
	go s.supervise()
	s.logger.Info("session negotiated")
	return nil
}
