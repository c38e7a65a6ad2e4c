package api

import (
	"context"
	"errors"
	"net/url"

	"github.com/go-resty/resty/v2"
)

// Modulus is the signed SRP modulus served by the auth endpoint.
type Modulus struct {
	Modulus   string
	ModulusID string
}

// GetModulus fetches a fresh SRP modulus.
func (c *Client) GetModulus(ctx context.Context) (Modulus, error) {
	var res struct {
		envelope
		Modulus   string
		ModulusID string
	}

	if err := c.do(ctx, "get modulus", &res, func(r *resty.Request) (*resty.Response, error) {
		return r.Get("/core/v4/auth/modulus")
	}); err != nil {
		return Modulus{}, err
	}

	if res.Modulus == "" || res.ModulusID == "" {
		return Modulus{}, &RequestError{Op: "get modulus", StatusCode: 200, Err: errors.New("empty modulus")}
	}

	return Modulus{Modulus: res.Modulus, ModulusID: res.ModulusID}, nil
}

// UpdateEventKeyPacketReq replaces the shared key packet of an event.
type UpdateEventKeyPacketReq struct {
	SharedKeyPacket string
}

// UpdateEventKeyPacket stores a re-encrypted shared key packet on an event.
func (c *Client) UpdateEventKeyPacket(ctx context.Context, calendarID, eventID string, req UpdateEventKeyPacketReq) error {
	var res envelope

	return c.do(ctx, "update event key packet", &res, func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(req).Put("/calendar/v1/" + url.PathEscape(calendarID) + "/events/" + url.PathEscape(eventID) + "/keypacket")
	})
}
