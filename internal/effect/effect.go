// Package effect executes payload actions against a host platform.
package effect

import (
	"context"
	"errors"
	"fmt"

	"github.com/chiliwax/QrCodeReader-v2/internal/logger"
	"github.com/chiliwax/QrCodeReader-v2/internal/payload"
)

// ErrUnsupportedEffect is returned when no handler can open an action's URL,
// or when the action's effect is unknown. It is a user notice, not a fault.
var ErrUnsupportedEffect = errors.New("effect: unsupported")

// Contact is the record handed to Host.AddContact.
type Contact struct {
	Name      string `json:"name"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
}

// ShareContent is what Host.Share receives; exactly one field is set.
type ShareContent struct {
	Message string `json:"message,omitempty"`
	URL     string `json:"url,omitempty"`
}

// Host is the platform side of each effect.
type Host interface {
	CanOpenURL(ctx context.Context, url string) (bool, error)
	OpenURL(ctx context.Context, url string) error
	SetClipboard(ctx context.Context, text string) error
	Share(ctx context.Context, content ShareContent) error
	AddContact(ctx context.Context, c Contact) error
}

// Result reports what happened when an action ran.
type Result struct {
	Notice string `json:"notice,omitempty"`
	// FellBack is true when AddContact failed and the raw payload was copied
	// to the clipboard instead.
	FellBack bool `json:"fellBack,omitempty"`
}

// Dispatcher interprets payload.Action values.
type Dispatcher struct {
	host Host
}

func NewDispatcher(host Host) *Dispatcher {
	return &Dispatcher{host: host}
}

// Run executes a. Errors wrapping ErrUnsupportedEffect should be shown to the
// user and otherwise ignored.
func (d *Dispatcher) Run(ctx context.Context, a payload.Action) (Result, error) {
	p := a.Params
	switch a.Effect {
	case payload.EffectOpenURL:
		target := p[payload.ParamURL]
		if a.RequireHandler {
			ok, err := d.host.CanOpenURL(ctx, target)
			if err != nil {
				return Result{}, fmt.Errorf("probe %s: %w", target, err)
			}
			if !ok {
				return Result{}, fmt.Errorf("%w: cannot open %s: no app installed that can handle this link", ErrUnsupportedEffect, target)
			}
		}
		if err := d.host.OpenURL(ctx, target); err != nil {
			return Result{}, fmt.Errorf("open %s: %w", target, err)
		}

	case payload.EffectCopyText:
		if err := d.host.SetClipboard(ctx, p[payload.ParamText]); err != nil {
			return Result{}, fmt.Errorf("copy: %w", err)
		}

	case payload.EffectShareText:
		if err := d.host.Share(ctx, ShareContent{Message: p[payload.ParamMessage], URL: p[payload.ParamURL]}); err != nil {
			return Result{}, fmt.Errorf("share: %w", err)
		}

	case payload.EffectAddContact:
		c := Contact{
			Name:      p[payload.ParamName],
			FirstName: p[payload.ParamFirstName],
			LastName:  p[payload.ParamLastName],
			Phone:     p[payload.ParamPhone],
			Email:     p[payload.ParamEmail],
		}
		if err := d.host.AddContact(ctx, c); err != nil {
			fallback, ok := p[payload.ParamFallback]
			if !ok {
				return Result{}, fmt.Errorf("add contact: %w", err)
			}
			logger.Warn("Effect", "Add contact failed, copying payload instead: %v", err)
			if cerr := d.host.SetClipboard(ctx, fallback); cerr != nil {
				return Result{}, fmt.Errorf("add contact: %w (clipboard fallback: %v)", err, cerr)
			}
			return Result{Notice: "Failed to add contact: " + err.Error(), FellBack: true}, nil
		}

	default:
		return Result{}, fmt.Errorf("%w: effect %q", ErrUnsupportedEffect, a.Effect)
	}
	return Result{Notice: a.Notice}, nil
}
