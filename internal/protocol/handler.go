package protocol

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/santiagoj/homeguard/internal/metrics"
	"github.com/santiagoj/homeguard/internal/models"
	"github.com/santiagoj/homeguard/internal/notify"
	"github.com/santiagoj/homeguard/internal/phone"
	"github.com/santiagoj/homeguard/internal/sms"
)

// Disposition is the terminal state reached for one inbound message. All
// states are reached synchronously; there is no multi-message session.
type Disposition string

const (
	// DispositionResponded: verified request, position sent back.
	DispositionResponded Disposition = "responded"
	// DispositionDenied: sender/code verification failed; nothing sent.
	DispositionDenied Disposition = "denied"
	// DispositionInvalidFormat: body matched neither wire prefix.
	DispositionInvalidFormat Disposition = "invalid_format"
	// DispositionInvalidCoordinates: response payload failed to parse.
	DispositionInvalidCoordinates Disposition = "invalid_coordinates"
	// DispositionLocationUnavailable: verified request but no position.
	DispositionLocationUnavailable Disposition = "location_unavailable"
	// DispositionSendFailed: verified request but the reply did not send.
	DispositionSendFailed Disposition = "send_failed"
	// DispositionResponseDelivered: well-formed response surfaced locally.
	DispositionResponseDelivered Disposition = "response_delivered"
)

// InboundResult reports how one inbound message terminated
type InboundResult struct {
	Disposition Disposition
	// Peer is the verified requester, set for responded/location_unavailable/
	// send_failed dispositions.
	Peer *models.TrustedContact
	// Position is the decoded peer position for response_delivered.
	Position *models.Position
	Err      error
}

// SnapshotSource serves the current offline directory snapshot
type SnapshotSource interface {
	Snapshot() *models.DirectorySnapshot
}

// PositionProvider supplies the device's own position
type PositionProvider interface {
	LastKnown() *models.Position
	RequestFresh(ctx context.Context, timeout time.Duration) (*models.Position, error)
}

// ResponseListener is invoked when a peer's position arrives over the
// fallback channel, typically to center a map on it. Responses are accepted
// unconditionally: the channel carries no request/response correlation, so
// any well-formed answer is treated as the most recent one.
type ResponseListener func(sender string, pos models.Position)

// Handler implements the SMS fallback path of the location exchange. It only
// reads the directory snapshot, so concurrent inbound messages are safe.
type Handler struct {
	snapshots SnapshotSource
	provider  PositionProvider
	transport sms.Transport
	sink      notify.Sink
	metrics   *metrics.Metrics
	logger    *logrus.Logger

	onResponse      ResponseListener
	freshFixTimeout time.Duration
}

// NewHandler creates an inbound/outbound protocol handler
func NewHandler(
	snapshots SnapshotSource,
	provider PositionProvider,
	transport sms.Transport,
	sink notify.Sink,
	m *metrics.Metrics,
	logger *logrus.Logger,
) *Handler {
	return &Handler{
		snapshots:       snapshots,
		provider:        provider,
		transport:       transport,
		sink:            sink,
		metrics:         m,
		logger:          logger,
		freshFixTimeout: 10 * time.Second,
	}
}

// OnResponse registers the listener for decoded peer positions
func (h *Handler) OnResponse(fn ResponseListener) {
	h.onResponse = fn
}

// RequestLocation sends a location request to a contact over SMS. Failures
// are reported to the caller and never retried.
func (h *Handler) RequestLocation(ctx context.Context, contact *models.TrustedContact) error {
	if contact.PhoneNumber == "" {
		return fmt.Errorf("contact %s has no phone number for the fallback channel", contact.DisplayName)
	}

	snap := h.snapshots.Snapshot()
	if snap.OwnPairingCode == "" {
		return fmt.Errorf("own pairing code is not known yet; refresh the directory first")
	}

	body := EncodeRequest(snap.OwnPairingCode)
	if err := h.transport.Send(ctx, contact.PhoneNumber, body); err != nil {
		return fmt.Errorf("failed to send location request: %w", err)
	}

	h.metrics.OutboundRequests.Inc()
	h.logger.WithFields(logrus.Fields{
		"contact": contact.DisplayName,
		"phone":   contact.PhoneNumber,
	}).Info("Location request sent")

	return nil
}

// HandleInbound classifies and processes one inbound message. Verification
// denials and format errors are silent to the sender and visible locally,
// so the channel cannot be probed for which numbers are paired.
func (h *Handler) HandleInbound(ctx context.Context, sender, body string) InboundResult {
	result := h.handleInbound(ctx, sender, body)
	h.metrics.InboundMessages.WithLabelValues(string(result.Disposition)).Inc()
	return result
}

func (h *Handler) handleInbound(ctx context.Context, sender, body string) InboundResult {
	if code, ok := DecodeRequest(body); ok {
		return h.handleRequest(ctx, phone.Normalize(sender), code)
	}

	if lat, lon, ok, err := DecodeResponse(body); ok {
		if err != nil {
			h.logger.WithField("sender", sender).Warnf("Malformed location response: %v", err)
			return InboundResult{Disposition: DispositionInvalidCoordinates, Err: err}
		}

		pos := models.Position{Latitude: lat, Longitude: lon, CapturedAt: time.Now()}
		h.sink.Notify("Location Response", fmt.Sprintf("Position received from %s: %.4f, %.4f", sender, lat, lon))
		if h.onResponse != nil {
			h.onResponse(sender, pos)
		}
		return InboundResult{Disposition: DispositionResponseDelivered, Position: &pos}
	}

	// Anything else produces only a local diagnostic, never a reply.
	h.logger.WithField("sender", sender).Debug("Inbound message is not a protocol message")
	return InboundResult{Disposition: DispositionInvalidFormat}
}

func (h *Handler) handleRequest(ctx context.Context, senderNormalized, requestedCode string) InboundResult {
	snap := h.snapshots.Snapshot()

	// Both the normalized phone number and the pairing code must match the
	// same contact. Matching only one is not enough.
	var matched *models.TrustedContact
	if senderNormalized != "" {
		for i := range snap.Contacts {
			c := &snap.Contacts[i]
			if phone.Normalize(c.PhoneNumber) == senderNormalized && c.PairingCode == requestedCode {
				matched = c
				break
			}
		}
	}

	if matched == nil {
		h.sink.Notify("Denied Request", "Unverified sender or code mismatch.")
		h.logger.WithField("sender", senderNormalized).Warn("Denied location request")
		return InboundResult{Disposition: DispositionDenied}
	}

	pos := h.provider.LastKnown()
	if pos == nil {
		fresh, err := h.provider.RequestFresh(ctx, h.freshFixTimeout)
		if err != nil || fresh == nil {
			h.sink.Notify("Location Unavailable", "No recent location found.")
			return InboundResult{
				Disposition: DispositionLocationUnavailable,
				Peer:        matched,
				Err:         models.ErrLocationUnavailable,
			}
		}
		pos = fresh
	}

	reply := EncodeResponse(pos.Latitude, pos.Longitude)
	if err := h.transport.Send(ctx, senderNormalized, reply); err != nil {
		h.sink.Notify("SMS Failed", fmt.Sprintf("Error sending location: %v", err))
		return InboundResult{Disposition: DispositionSendFailed, Peer: matched, Err: err}
	}

	h.sink.Notify("Location Sent", fmt.Sprintf("Sent to %s", matched.DisplayName))
	return InboundResult{Disposition: DispositionResponded, Peer: matched}
}
