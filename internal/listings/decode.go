package listings

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/tbourn/go-autodaft/internal/domain"
)

// errStopped reports that the consumer stopped ranging early. It is not a
// source failure.
var errStopped = errors.New("listings: consumer stopped")

// wireListing is one element of the data array. The service is loose with
// types: price is sometimes a number and bedrooms often reads "2 Bed".
type wireListing struct {
	Title        flexString `json:"title"`
	Price        flexString `json:"price"`
	URL          flexString `json:"url"`
	Bedrooms     flexInt    `json:"bedrooms"`
	PropertyType flexString `json:"propertyType"`
	Address      flexString `json:"address"`
}

func (w wireListing) toDomain() domain.Listing {
	return domain.Listing{
		Title:        strings.TrimSpace(string(w.Title)),
		Price:        strings.TrimSpace(string(w.Price)),
		URL:          strings.TrimSpace(string(w.URL)),
		Bedrooms:     int(w.Bedrooms),
		PropertyType: strings.TrimSpace(string(w.PropertyType)),
		Address:      strings.TrimSpace(string(w.Address)),
	}
}

// flexString accepts a JSON string, number, boolean or null.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*f = ""
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
	case b[0] == '{' || b[0] == '[':
		return fmt.Errorf("listings: expected scalar, got %s", b)
	default:
		*f = flexString(b)
	}
	return nil
}

var firstInt = regexp.MustCompile(`\d+`)

// flexInt accepts a JSON number, a string containing a number ("2 Bed") or
// null. Anything without digits decodes to 0.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*f = 0
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		m := firstInt.FindString(s)
		if m == "" {
			*f = 0
			return nil
		}
		n, err := strconv.Atoi(m)
		if err != nil {
			return err
		}
		*f = flexInt(n)
	default:
		n, err := strconv.ParseFloat(string(b), 64)
		if err != nil {
			return fmt.Errorf("listings: bedrooms %s: %w", b, err)
		}
		*f = flexInt(n)
	}
	return nil
}

// decodeEnvelope walks the response document, calling emit for each listing
// in data. Elements that fail to decode are reported to skip and dropped;
// structural errors end the walk. It returns errStopped when emit returns
// false.
func decodeEnvelope(r io.Reader, emit func(wireListing) bool, skip func(error)) error {
	dec := json.NewDecoder(r)
	if err := expectDelim(dec, '{'); err != nil {
		return err
	}

	var (
		status  string
		message string
		sawData bool
	)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("listings: read key: %w", err)
		}
		key, _ := tok.(string)

		switch key {
		case "status":
			var s flexString
			if err := dec.Decode(&s); err != nil {
				return fmt.Errorf("listings: decode status: %w", err)
			}
			status = strings.ToLower(strings.TrimSpace(string(s)))
		case "message", "detail":
			var s flexString
			if err := dec.Decode(&s); err != nil && structural(err) {
				return fmt.Errorf("listings: decode message: %w", err)
			}
			message = string(s)
		case "data":
			if status == "error" {
				if err := discard(dec); err != nil {
					return err
				}
				continue
			}
			sawData = true
			if err := decodeData(dec, emit, skip); err != nil {
				return err
			}
		default:
			if err := discard(dec); err != nil {
				return err
			}
		}
	}
	if err := expectDelim(dec, '}'); err != nil {
		return err
	}

	switch {
	case status == "error":
		if message == "" {
			message = "unknown error"
		}
		return fmt.Errorf("listings: service error: %s", message)
	case status != "" && status != "success":
		return fmt.Errorf("listings: unexpected status %q", status)
	case !sawData:
		return errors.New("listings: response has no data")
	}
	return nil
}

func decodeData(dec *json.Decoder, emit func(wireListing) bool, skip func(error)) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("listings: read data: %w", err)
	}
	if tok == nil { // "data": null
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return fmt.Errorf("listings: data is not an array (got %v)", tok)
	}
	for dec.More() {
		var w wireListing
		if err := dec.Decode(&w); err != nil {
			if structural(err) {
				return fmt.Errorf("listings: decode listing: %w", err)
			}
			skip(err)
			continue
		}
		if !emit(w) {
			return errStopped
		}
	}
	return expectDelim(dec, ']')
}

// structural reports whether err leaves the decoder unusable.
func structural(err error) bool {
	var se *json.SyntaxError
	return errors.As(err, &se) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("listings: expected %q: %w", want, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("listings: expected %q, got %v", want, tok)
	}
	return nil
}

func discard(dec *json.Decoder) error {
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("listings: skip value: %w", err)
	}
	return nil
}
