package send

import (
	"context"
	"encoding/base64"
	"fmt"
)

// SendRequest is the body of the send call.
type SendRequest struct {
	ExpiresIn    int64 `json:",omitempty"`
	DelaySeconds int64
	Packages     []Package
}

// Package groups the recipients that read the same body variant.
type Package struct {
	Addresses      map[string]AddressPackage
	MIMEType       MIMEType
	Type           Scheme
	Body           string
	BodyKey        *SessionKeyPackage           `json:",omitempty"`
	AttachmentKeys map[string]SessionKeyPackage `json:",omitempty"`
}

type group int

const (
	groupPlainText group = iota
	groupHTML
	groupMIME
)

func groupOf(pkg AddressPackage) group {
	switch {
	case pkg.Type.IsMIME():
		return groupMIME
	case pkg.PlainText:
		return groupPlainText
	default:
		return groupHTML
	}
}

// SendRequest plans and builds every recipient package and groups them by
// body variant. Clear session keys are attached to a group only when the
// group holds a clear recipient.
func (d Draft) SendRequest(ctx context.Context, verifier PasswordVerifier, workers int) (SendRequest, error) {
	builders, err := d.PackageBuilders(verifier)
	if err != nil {
		return SendRequest{}, err
	}

	pkgs, err := BuildPackages(ctx, builders, workers)
	if err != nil {
		return SendRequest{}, err
	}

	var groups [3]*Package

	for _, pkg := range pkgs {
		g := groupOf(pkg)

		if groups[g] == nil {
			out, err := d.newPackage(g)
			if err != nil {
				return SendRequest{}, err
			}

			groups[g] = out
		}

		groups[g].Addresses[pkg.Email] = pkg
		groups[g].Type |= pkg.Type
	}

	req := SendRequest{
		ExpiresIn:    max(d.expiresIn, 0),
		DelaySeconds: d.delaySeconds,
	}

	for g, out := range groups {
		if out == nil {
			continue
		}

		if out.Type&(SchemeClear|SchemeClearMIME) != 0 {
			if err := d.exposeClearKeys(group(g), out); err != nil {
				return SendRequest{}, err
			}
		}

		req.Packages = append(req.Packages, *out)
	}

	return req, nil
}

func (d Draft) newPackage(g group) (*Package, error) {
	var (
		dataPacket []byte
		mimeType   MIMEType
	)

	switch g {
	case groupPlainText:
		if d.plainText == nil {
			return nil, ErrPlainTextDataNotPrepared
		}

		dataPacket, mimeType = d.plainText.DataPacket, MIMETypePlainText

	case groupHTML:
		dataPacket, mimeType = d.body.DataPacket, MIMETypeHTML

	case groupMIME:
		if d.mime == nil {
			return nil, ErrMIMEDataNotPrepared
		}

		dataPacket, mimeType = d.mime.DataPacket, MIMETypeMIME
	}

	if len(dataPacket) == 0 {
		return nil, fmt.Errorf("empty %s body", mimeType)
	}

	return &Package{
		Addresses: make(map[string]AddressPackage),
		MIMEType:  mimeType,
		Body:      base64.StdEncoding.EncodeToString(dataPacket),
	}, nil
}

func (d Draft) exposeClearKeys(g group, out *Package) error {
	var err error

	switch g {
	case groupPlainText:
		out.BodyKey, err = d.ClearPlainBodyPackage()
	case groupHTML:
		out.BodyKey, err = d.ClearBodyPackage()
	case groupMIME:
		out.BodyKey, err = d.ClearMIMEBodyPackage()
	}

	if err != nil {
		return err
	}

	if g == groupMIME {
		return nil
	}

	out.AttachmentKeys, err = d.ClearAttachments()

	return err
}
