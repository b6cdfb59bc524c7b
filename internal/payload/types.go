// Package payload turns decoded QR text into a typed result with the actions
// a host can offer for it.
package payload

import "errors"

// ErrMalformedURL is returned when a payload has an http(s) prefix but does
// not parse as a URL.
var ErrMalformedURL = errors.New("payload: malformed url")

// Kind is the detected payload format.
type Kind string

const (
	KindURL      Kind = "URL"
	KindAppLink  Kind = "APP_LINK"
	KindWiFi     Kind = "WIFI"
	KindContact  Kind = "CONTACT"
	KindEmail    Kind = "EMAIL"
	KindSMS      Kind = "SMS"
	KindPhone    Kind = "PHONE"
	KindGeo      Kind = "GEO"
	KindCalendar Kind = "CALENDAR"
	KindText     Kind = "TEXT"
)

// Effect names the host operation an action performs.
type Effect string

const (
	EffectOpenURL    Effect = "open_url"
	EffectCopyText   Effect = "copy_text"
	EffectShareText  Effect = "share_text"
	EffectAddContact Effect = "add_contact"
)

// Param keys used in Action.Params.
const (
	ParamURL       = "url"
	ParamText      = "text"
	ParamMessage   = "message"
	ParamName      = "name"
	ParamFirstName = "firstName"
	ParamLastName  = "lastName"
	ParamPhone     = "phone"
	ParamEmail     = "email"
	// ParamFallback is copied to the clipboard when AddContact fails.
	ParamFallback = "fallbackText"
)

// Action is a declarative description of something the user can do with a
// payload. Executing it is up to the host.
type Action struct {
	Label  string            `json:"label"`
	Icon   string            `json:"icon,omitempty"`
	Effect Effect            `json:"effect"`
	Params map[string]string `json:"params"`
	// RequireHandler asks the host to check that something can open the URL
	// before opening it.
	RequireHandler bool `json:"requireHandler,omitempty"`
	// Notice is shown to the user after the effect succeeds.
	Notice string `json:"notice,omitempty"`
}

// Parsed is the classification of one payload. It is derived only from
// RawData and never mutated after Classify returns.
type Parsed struct {
	Kind      Kind              `json:"kind"`
	RawData   string            `json:"rawData"`
	Title     string            `json:"title"`
	Subtitle  string            `json:"subtitle,omitempty"`
	Fields    map[string]string `json:"fields"`
	Primary   *Action           `json:"primaryAction,omitempty"`
	Secondary []Action          `json:"secondaryActions"`
}

// Field returns a field value or "" when absent.
func (p Parsed) Field(name string) string {
	return p.Fields[name]
}
