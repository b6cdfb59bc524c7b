package payload

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// nl is "any character but a line terminator", matching how the payload
// grammars treat a field as running to the end of its line.
const nl = `[^\r\n\x{2028}\x{2029}]`

// lineEnd terminates a vCard/iCalendar field line.
const lineEnd = `(?:\r?\n|\r|$)`

var (
	appLinkRe = regexp.MustCompile(`^[a-zA-Z0-9.+-]+://`)

	wifiSSIDRe     = regexp.MustCompile(`S:(` + nl + `*?);`)
	wifiTypeRe     = regexp.MustCompile(`T:(` + nl + `*?);`)
	wifiPasswordRe = regexp.MustCompile(`P:(` + nl + `*?);`)

	vcardNameRe  = regexp.MustCompile(`FN:(` + nl + `*?)` + lineEnd)
	vcardTelRe   = regexp.MustCompile(`TEL` + nl + `*?:(` + nl + `*?)` + lineEnd)
	vcardEmailRe = regexp.MustCompile(`EMAIL` + nl + `*?:(` + nl + `*?)` + lineEnd)

	subjectParamRe = regexp.MustCompile(`[?&]subject=([^&]*)`)
	bodyParamRe    = regexp.MustCompile(`[?&]body=([^&]*)`)

	eventSummaryRe  = regexp.MustCompile(`SUMMARY:(` + nl + `*?)` + lineEnd)
	eventLocationRe = regexp.MustCompile(`LOCATION:(` + nl + `*?)` + lineEnd)
	eventStartRe    = regexp.MustCompile(`DTSTART:(` + nl + `*?)` + lineEnd)
	eventEndRe      = regexp.MustCompile(`DTEND:(` + nl + `*?)` + lineEnd)
	basicDateTimeRe = regexp.MustCompile(`(\d{4})(\d{2})(\d{2})T(\d{2})(\d{2})(\d{2})`)
)

// Reserved schemes that look like "scheme:" but are handled by their own rule
// even when written with "//".
var reservedPrefixes = []string{"mailto:", "tel:", "sms:", "smsto:", "geo:"}

// Field names per kind.
const (
	FieldURL       = "url"
	FieldSSID      = "ssid"
	FieldSecurity  = "type"
	FieldPassword  = "password"
	FieldName      = "name"
	FieldPhone     = "phone"
	FieldEmail     = "email"
	FieldSubject   = "subject"
	FieldBody      = "body"
	FieldMessage   = "message"
	FieldLatitude  = "latitude"
	FieldLongitude = "longitude"
	FieldSummary   = "summary"
	FieldLocation  = "location"
	FieldStartTime = "startTime"
	FieldEndTime   = "endTime"
	FieldText      = "text"
)

// Detect returns the kind raw would be classified as. It never fails; a
// malformed http(s) URL still reports KindURL.
func Detect(raw string) Kind {
	switch {
	case strings.HasPrefix(raw, "http://"), strings.HasPrefix(raw, "https://"):
		return KindURL
	case appLinkRe.MatchString(raw) && !hasAnyPrefix(raw, reservedPrefixes):
		return KindAppLink
	case strings.HasPrefix(raw, "WIFI:"):
		return KindWiFi
	case strings.HasPrefix(raw, "BEGIN:VCARD"):
		return KindContact
	case strings.HasPrefix(raw, "mailto:"):
		return KindEmail
	case strings.HasPrefix(raw, "smsto:"), strings.HasPrefix(raw, "sms:"):
		return KindSMS
	case strings.HasPrefix(raw, "tel:"):
		return KindPhone
	case strings.HasPrefix(raw, "geo:"):
		return KindGeo
	case strings.HasPrefix(raw, "BEGIN:VEVENT"):
		return KindCalendar
	default:
		return KindText
	}
}

// Classify parses raw into a Parsed result with its actions.
//
// Classify always returns a usable result. When an http(s) payload cannot be
// parsed as a URL it returns the TEXT classification of raw together with an
// error wrapping ErrMalformedURL; callers should surface that error rather
// than present the fallback silently.
func Classify(raw string) (Parsed, error) {
	var p Parsed
	switch Detect(raw) {
	case KindURL:
		u, err := url.Parse(raw)
		if err == nil && u.Host == "" {
			err = errors.New("missing host")
		}
		if err != nil {
			return Build(parseText(raw)), fmt.Errorf("%w: %q: %v", ErrMalformedURL, raw, err)
		}
		p = Parsed{
			Kind:     KindURL,
			Title:    "Website",
			Subtitle: urlHost(u),
			Fields:   map[string]string{FieldURL: raw},
		}
	case KindAppLink:
		p = parseAppLink(raw)
	case KindWiFi:
		p = parseWiFi(raw)
	case KindContact:
		p = parseVCard(raw)
	case KindEmail:
		p = parseEmail(raw)
	case KindSMS:
		p = parseSMS(raw)
	case KindPhone:
		phone := strings.TrimPrefix(raw, "tel:")
		p = Parsed{Kind: KindPhone, Title: "Phone Number", Subtitle: phone,
			Fields: map[string]string{FieldPhone: phone}}
	case KindGeo:
		p = parseGeo(raw)
	case KindCalendar:
		p = parseCalendar(raw)
	default:
		p = parseText(raw)
	}
	p.RawData = raw
	return Build(p), nil
}

// urlHost is the lowercased host without port. IPv6 literals keep their
// brackets.
func urlHost(u *url.URL) string {
	h := strings.ToLower(u.Hostname())
	if strings.Contains(h, ":") {
		return "[" + h + "]"
	}
	return h
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// submatch returns the first capture group of re in s, or def when re does
// not match.
func submatch(re *regexp.Regexp, s, def string) string {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return def
	}
	return m[1]
}

func parseAppLink(raw string) Parsed {
	scheme, _, _ := strings.Cut(raw, "://")
	display := scheme
	if scheme != "" {
		display = strings.ToUpper(scheme[:1]) + scheme[1:]
	}
	return Parsed{
		Kind:     KindAppLink,
		Title:    "App Link",
		Subtitle: display,
		Fields:   map[string]string{FieldURL: raw},
	}
}

// parseWiFi reads WIFI:S:<ssid>;T:<WPA|WEP|>;P:<password>;;
func parseWiFi(raw string) Parsed {
	ssid := submatch(wifiSSIDRe, raw, "Unknown Network")
	return Parsed{
		Kind:     KindWiFi,
		Title:    "WiFi Network",
		Subtitle: ssid,
		Fields: map[string]string{
			FieldSSID:     ssid,
			FieldSecurity: submatch(wifiTypeRe, raw, "Unknown"),
			FieldPassword: submatch(wifiPasswordRe, raw, ""),
		},
	}
}

func parseVCard(raw string) Parsed {
	name := submatch(vcardNameRe, raw, "Unknown Contact")
	return Parsed{
		Kind:     KindContact,
		Title:    "Contact",
		Subtitle: name,
		Fields: map[string]string{
			FieldName:  name,
			FieldPhone: submatch(vcardTelRe, raw, ""),
			FieldEmail: submatch(vcardEmailRe, raw, ""),
		},
	}
}

// queryParam extracts and decodes a subject=/body= style parameter.
func queryParam(re *regexp.Regexp, raw string) string {
	m := re.FindStringSubmatch(raw)
	if m == nil {
		return ""
	}
	return decodeComponent(m[1])
}

// parseEmail reads mailto:addr?subject=...&body=...
func parseEmail(raw string) Parsed {
	email, _, _ := strings.Cut(strings.TrimPrefix(raw, "mailto:"), "?")
	return Parsed{
		Kind:     KindEmail,
		Title:    "Email Address",
		Subtitle: email,
		Fields: map[string]string{
			FieldEmail:   email,
			FieldSubject: queryParam(subjectParamRe, raw),
			FieldBody:    queryParam(bodyParamRe, raw),
		},
	}
}

// parseSMS handles both smsto:<phone>:<message> and sms:<phone>?body=<message>.
func parseSMS(raw string) Parsed {
	var phone, message string
	if rest, ok := strings.CutPrefix(raw, "smsto:"); ok {
		phone, message, _ = strings.Cut(rest, ":")
	} else {
		phone, _, _ = strings.Cut(strings.TrimPrefix(raw, "sms:"), "?")
		message = queryParam(bodyParamRe, raw)
	}
	return Parsed{
		Kind:     KindSMS,
		Title:    "SMS Message",
		Subtitle: phone,
		Fields:   map[string]string{FieldPhone: phone, FieldMessage: message},
	}
}

// parseGeo reads geo:<lat>,<lon>[,...]; missing parts default to "0".
func parseGeo(raw string) Parsed {
	coords := strings.Split(strings.TrimPrefix(raw, "geo:"), ",")
	lat, lon := "0", "0"
	if coords[0] != "" {
		lat = coords[0]
	}
	if len(coords) > 1 && coords[1] != "" {
		lon = coords[1]
	}
	return Parsed{
		Kind:     KindGeo,
		Title:    "Location",
		Subtitle: lat + ", " + lon,
		Fields:   map[string]string{FieldLatitude: lat, FieldLongitude: lon},
	}
}

func parseCalendar(raw string) Parsed {
	summary := submatch(eventSummaryRe, raw, "Unknown Event")
	fields := map[string]string{
		FieldSummary:  summary,
		FieldLocation: submatch(eventLocationRe, raw, ""),
	}
	if t, ok := eventTime(eventStartRe, raw); ok {
		fields[FieldStartTime] = t
	}
	if t, ok := eventTime(eventEndRe, raw); ok {
		fields[FieldEndTime] = t
	}
	return Parsed{
		Kind:     KindCalendar,
		Title:    "Calendar Event",
		Subtitle: summary,
		Fields:   fields,
	}
}

// eventTime converts a DTSTART/DTEND value in YYYYMMDDTHHMMSS[Z] form to
// RFC 3339. Floating times are read in the local zone. ok is false when the
// field is absent or not a valid date.
func eventTime(re *regexp.Regexp, raw string) (string, bool) {
	m := re.FindStringSubmatch(raw)
	if m == nil {
		return "", false
	}
	iso := basicDateTimeRe.ReplaceAllString(m[1], "${1}-${2}-${3}T${4}:${5}:${6}")
	if t, err := time.Parse(time.RFC3339, iso); err == nil {
		return t.Format(time.RFC3339), true
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04:05", iso, time.Local); err == nil {
		return t.Format(time.RFC3339), true
	}
	return "", false
}

func parseText(raw string) Parsed {
	return Parsed{
		Kind:    KindText,
		RawData: raw,
		Title:   "Text",
		Fields:  map[string]string{FieldText: raw},
	}
}
