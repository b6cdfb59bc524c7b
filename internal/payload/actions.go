package payload

import "strings"

const (
	mapsSearchURL = "https://maps.google.com/maps?q="
	webSearchURL  = "https://www.google.com/search?q="
)

func openURL(label, icon, target string) Action {
	return Action{Label: label, Icon: icon, Effect: EffectOpenURL, Params: map[string]string{ParamURL: target}}
}

func copyText(label, icon, text string) Action {
	return Action{Label: label, Icon: icon, Effect: EffectCopyText, Params: map[string]string{ParamText: text}}
}

func share(params map[string]string) Action {
	return Action{Label: "Share", Icon: "share-outline", Effect: EffectShareText, Params: params}
}

// splitName splits a display name on its first space.
func splitName(name string) (first, last string) {
	first, last, _ = strings.Cut(name, " ")
	return first, last
}

// Build attaches the primary and secondary actions for p.Kind, replacing any
// already present. Fields missing from p read as empty strings.
func Build(p Parsed) Parsed {
	raw := p.RawData
	f := p.Field
	var primary *Action
	secondary := []Action{}

	switch p.Kind {
	case KindURL:
		primary = ptr(openURL("Open Website", "globe-outline", raw))
		secondary = append(secondary,
			copyText("Copy URL", "copy-outline", raw),
			share(map[string]string{ParamURL: raw}),
		)

	case KindAppLink:
		a := openURL("Open in App", "open-outline", raw)
		a.RequireHandler = true
		primary = &a
		cp := copyText("Copy Link", "copy-outline", raw)
		cp.Notice = "Link copied to clipboard"
		secondary = append(secondary, cp, share(map[string]string{ParamMessage: raw}))

	case KindWiFi:
		primary = ptr(copyText("Copy Password", "key-outline", f(FieldPassword)))
		secondary = append(secondary, copyText("Copy Network Name", "copy-outline", f(FieldSSID)))

	case KindContact:
		name, phone, email := f(FieldName), f(FieldPhone), f(FieldEmail)
		if phone != "" {
			primary = ptr(openURL("Call Contact", "call-outline", "tel:"+phone))
		}
		first, last := splitName(name)
		secondary = append(secondary, Action{
			Label:  "Add to Contacts",
			Icon:   "person-add-outline",
			Effect: EffectAddContact,
			Params: map[string]string{
				ParamName:      name,
				ParamFirstName: first,
				ParamLastName:  last,
				ParamPhone:     phone,
				ParamEmail:     email,
				ParamFallback:  raw,
			},
			Notice: `Contact "` + name + `" added`,
		})
		if email != "" {
			secondary = append(secondary, openURL("Send Email", "mail-outline", "mailto:"+email))
		}

	case KindEmail:
		primary = ptr(openURL("Send Email", "mail-outline", raw))
		secondary = append(secondary, copyText("Copy Address", "copy-outline", f(FieldEmail)))

	case KindSMS:
		phone := f(FieldPhone)
		primary = ptr(openURL("Send Message", "chatbubble-outline", raw))
		secondary = append(secondary,
			openURL("Call Number", "call-outline", "tel:"+phone),
			copyText("Copy Number", "copy-outline", phone),
		)

	case KindPhone:
		phone := f(FieldPhone)
		primary = ptr(openURL("Call Number", "call-outline", raw))
		secondary = append(secondary,
			openURL("Send SMS", "chatbox-outline", "sms:"+phone),
			copyText("Copy Number", "copy-outline", phone),
		)

	case KindGeo:
		coords := f(FieldLatitude) + "," + f(FieldLongitude)
		primary = ptr(openURL("Open in Maps", "map-outline", mapsSearchURL+coords))
		secondary = append(secondary, copyText("Copy Coordinates", "copy-outline", coords))

	case KindCalendar:
		// No calendar-write effect exists; the raw event goes to the clipboard.
		a := copyText("Add to Calendar", "calendar-outline", raw)
		a.Notice = "Event details copied to clipboard"
		primary = &a
		if loc := f(FieldLocation); loc != "" {
			secondary = append(secondary, openURL("View Location", "navigate-outline", mapsSearchURL+encodeComponent(loc)))
		}

	default:
		primary = ptr(copyText("Copy Text", "copy-outline", raw))
		secondary = append(secondary,
			openURL("Search Web", "search-outline", webSearchURL+encodeComponent(raw)),
			share(map[string]string{ParamMessage: raw}),
		)
	}

	p.Primary = primary
	p.Secondary = secondary
	return p
}

func ptr(a Action) *Action { return &a }
