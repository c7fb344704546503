package outcome

import (
	"strings"

	"github.com/tidwall/gjson"
)

var (
	failureVocab = []string{"error", "fail", "unable", "couldn't", "invalid", "not accepting"}
	successVocab = []string{"placed", "confirmed", "success", "complete"}

	// orderRefVocab marks plain-text results that reference a created
	// order or booking.
	orderRefVocab = []string{"order #", "order id", "order number", "confirmation", "booked", "reservation"}
)

const (
	// maxScanDepth bounds the identifier-key scan.
	maxScanDepth = 5
	// leadingPortion is how much of a plain-text result is scanned for
	// failure vocabulary: error banners come first, references later.
	leadingPortion = 160
)

// identifierKeys are the field names ordering/booking APIs use for the
// identifier of a created order, matched case-insensitively.
var identifierKeys = map[string]bool{
	"orderid": true, "order_id": true, "ordernumber": true, "order_number": true,
	"confirmationid": true, "confirmation_id": true,
	"confirmationnumber": true, "confirmation_number": true,
	"bookingid": true, "booking_id": true,
	"reservationid": true, "reservation_id": true,
	"referenceid": true, "reference_id": true,
}

// Verify determines success or failure from the raw result of a
// side-effecting tool call. JSON results get the structural check,
// anything else the textual fallback.
func Verify(raw string) bool {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return false
	}
	if gjson.Valid(trimmed) {
		doc := gjson.Parse(trimmed)
		if doc.Type == gjson.String {
			return verifyText(doc.String())
		}
		return verifyJSON(doc)
	}
	return verifyText(trimmed)
}

func verifyJSON(doc gjson.Result) bool {
	// explicit failure signals come first: the remote APIs are known to
	// emit misleading root-level success flags alongside a failed
	// nested data block
	successful := doc.Get("data.successful")
	if successful.Exists() && successful.Type == gjson.False {
		return false
	}
	if msg := doc.Get("data.statusMessage"); msg.Exists() && containsAny(msg.String(), failureVocab) {
		return false
	}
	if msg := doc.Get("message"); msg.Exists() && containsAny(msg.String(), failureVocab) {
		return false
	}

	if successful.Exists() && successful.Type == gjson.True {
		return true
	}
	if hasIdentifierKey(doc) {
		return true
	}
	for _, path := range []string{"data.status", "status", "data.state", "state", "data.statusMessage", "statusMessage", "message"} {
		if v := doc.Get(path); v.Exists() && containsAny(v.String(), successVocab) {
			return true
		}
	}
	return false
}

func verifyText(text string) bool {
	lead := text
	if len(lead) > leadingPortion {
		lead = lead[:leadingPortion]
	}
	if containsAny(lead, failureVocab) {
		return false
	}
	if containsAny(text, successVocab) || containsAny(text, orderRefVocab) {
		return true
	}
	// no signal either way: the conservative reading is that nothing
	// was placed
	return false
}

// hasIdentifierKey scans the document breadth-first for a known
// order/booking identifier key with a non-empty scalar value.
func hasIdentifierKey(doc gjson.Result) bool {
	type node struct {
		value gjson.Result
		depth int
	}
	work := []node{{value: doc}}
	for len(work) > 0 {
		n := work[0]
		work = work[1:]
		if n.depth > maxScanDepth {
			continue
		}

		found := false
		switch {
		case n.value.IsObject():
			n.value.ForEach(func(key, value gjson.Result) bool {
				if identifierKeys[strings.ToLower(key.String())] && isScalar(value) && value.String() != "" {
					found = true
					return false
				}
				if value.IsObject() || value.IsArray() {
					work = append(work, node{value: value, depth: n.depth + 1})
				}
				return true
			})
		case n.value.IsArray():
			for _, el := range n.value.Array() {
				if el.IsObject() || el.IsArray() {
					work = append(work, node{value: el, depth: n.depth + 1})
				}
			}
		}
		if found {
			return true
		}
	}
	return false
}

func isScalar(v gjson.Result) bool {
	return !v.IsObject() && !v.IsArray() && v.Type != gjson.Null
}

func containsAny(s string, vocab []string) bool {
	s = strings.ToLower(s)
	for _, w := range vocab {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
