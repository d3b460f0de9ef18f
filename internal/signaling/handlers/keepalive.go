package handlers

import "github.com/speakeasy-rtc/speakeasy/internal/signaling"

// PongResponse is the reply to a keepalive Ping (§4.4: the Ping/Pong
// cycle keeps the inactivity timeout from firing).
type PongResponse struct{}

// Ping replies with Pong. No state is touched: the connection's read
// loop resets its own inactivity deadline on any successfully dispatched
// frame, not specifically inside this handler.
func (d *Dependencies) Ping(sess *signaling.Session, req signaling.Envelope) (any, *signaling.WireError) {
	return PongResponse{}, nil
}
