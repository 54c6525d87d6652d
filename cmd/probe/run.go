package main

import (
	"context"
	"encoding/json"
	"fmt"

	"pairline/internal/core/domain"
	"pairline/internal/core/services"
	"pairline/internal/infrastructure/signal"
	webrtcinfra "pairline/internal/infrastructure/webrtc"

	"go.uber.org/zap"
)

func run(ctx context.Context, opts options, log *zap.SugaredLogger) error {
	tokens, err := guestLogin(ctx, opts.server, opts.displayName, opts.gender)
	if err != nil {
		return err
	}
	log = log.With("user_id", tokens.UserID)
	log.Infow("signed in as guest", "display_name", tokens.DisplayName)

	client, err := dialSignal(ctx, opts.server, tokens.AccessToken)
	if err != nil {
		return err
	}
	defer client.close()

	api, err := webrtcinfra.NewAPI(opts.portMin, opts.portMax)
	if err != nil {
		return err
	}
	quality, err := services.NewQualityService(services.DefaultQualityPolicy())
	if err != nil {
		return err
	}

	findMatch := func() error {
		return client.send(signal.MsgFindMatch, signal.FindMatchPayload{PreferredGender: opts.prefer})
	}

	var session *peerSession
	endSession := func() {
		if session != nil {
			session.close()
			session = nil
		}
	}
	defer endSession()

	events, readErr := client.events()
	for {
		select {
		case <-ctx.Done():
			if session != nil {
				_ = client.send(signal.MsgEndCall, nil)
			}
			return ctx.Err()

		case err := <-readErr:
			return fmt.Errorf("signaling connection lost: %w", err)

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			switch domain.EventType(ev.Type) {
			case domain.EventAuthenticated:
				if err := findMatch(); err != nil {
					return err
				}

			case domain.EventSearching:
				var p domain.SearchingPayload
				_ = json.Unmarshal(ev.Payload, &p)
				log.Infow("searching", "waiting", p.QueueStats.Waiting)

			case domain.EventMatchFound:
				var match domain.MatchFoundPayload
				if err := json.Unmarshal(ev.Payload, &match); err != nil {
					return fmt.Errorf("decode match_found: %w", err)
				}
				log.Infow("matched", "partner", match.PartnerName, "initiator", match.IsInitiator)
				endSession()
				session, err = newPeerSession(ctx, api, client, match, quality, services.QualityControllerConfig{}, log)
				if err != nil {
					return err
				}

			case domain.EventSignal:
				var p domain.SignalPayload
				if err := json.Unmarshal(ev.Payload, &p); err != nil || session == nil {
					continue
				}
				if err := session.handleSignal(p.Data); err != nil {
					log.Warnw("failed to apply signal", "error", err)
				}

			case domain.EventQualityChanged:
				var tier domain.QualityTier
				_ = json.Unmarshal(ev.Payload, &tier)
				log.Infow("server quality tier", "tier", tier.Label)

			case domain.EventChatMessage:
				var p domain.ChatPayload
				_ = json.Unmarshal(ev.Payload, &p)
				log.Infow("chat", "text", p.Text, "flagged", p.Flagged)

			case domain.EventSessionEnded:
				var p domain.SessionEndedPayload
				_ = json.Unmarshal(ev.Payload, &p)
				log.Infow("session ended", "reason", p.Reason)
				endSession()
				if !opts.rematch {
					return nil
				}
				if err := findMatch(); err != nil {
					return err
				}

			case domain.EventAuthError, domain.EventMatchError, domain.EventError:
				var p domain.MessagePayload
				_ = json.Unmarshal(ev.Payload, &p)
				log.Warnw("server reported an error", "type", ev.Type, "message", p.Message)
				if domain.EventType(ev.Type) == domain.EventAuthError {
					return fmt.Errorf("authentication rejected: %s", p.Message)
				}
			}
		}
	}
}
