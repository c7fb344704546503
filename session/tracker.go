package session

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Tracker observes tool invocations and pulls identifiers out of the
// results into the conversation Context. Extraction is duck-typed: tool
// names are matched by substring and results probed for known shapes;
// anything unexpected is silently ignored.
type Tracker struct {
	extractors []extractor
}

type extractor struct {
	keyword string
	apply   func(sc *Context, args, result string)
}

// NewTracker returns a Tracker with the default extractor table:
// address listings, restaurant search, menu fetch and cart updates.
func NewTracker() *Tracker {
	return &Tracker{
		extractors: []extractor{
			{keyword: "address", apply: extractAddresses},
			{keyword: "restaurant", apply: extractRestaurants},
			{keyword: "menu", apply: extractMenu},
			{keyword: "cart", apply: extractCart},
			{keyword: "item", apply: extractCart},
		},
	}
}

// Observe feeds one completed tool call into the context. Several
// extractors may fire for one tool; each only writes when the payload
// has the shape it knows.
func (t *Tracker) Observe(sc *Context, namespacedTool, argsJSON, resultText string) {
	if sc == nil {
		return
	}
	if !gjson.Valid(resultText) {
		resultText = ""
	}
	if !gjson.Valid(argsJSON) {
		argsJSON = ""
	}
	if resultText == "" && argsJSON == "" {
		return
	}

	name := strings.ToLower(namespacedTool)
	for _, ex := range t.extractors {
		if strings.Contains(name, ex.keyword) {
			ex.apply(sc, argsJSON, resultText)
		}
	}
}

// firstString returns the first of the paths that resolves to a non-empty
// scalar in the JSON document.
func firstString(doc string, paths ...string) string {
	if doc == "" {
		return ""
	}
	for _, p := range paths {
		if v := gjson.Get(doc, p); v.Exists() {
			if s := v.String(); s != "" && !v.IsObject() && !v.IsArray() {
				return s
			}
		}
	}
	return ""
}

// firstArray returns the first of the paths that resolves to an array.
// The empty path probes the document root.
func firstArray(doc string, paths ...string) []gjson.Result {
	if doc == "" {
		return nil
	}
	for _, p := range paths {
		var v gjson.Result
		if p == "" {
			v = gjson.Parse(doc)
		} else {
			v = gjson.Get(doc, p)
		}
		if v.IsArray() {
			return v.Array()
		}
	}
	return nil
}

func toEntries(items []gjson.Result, idPaths, namePaths []string) []Entry {
	var out []Entry
	for _, item := range items {
		if !item.IsObject() {
			continue
		}
		id := firstString(item.Raw, idPaths...)
		if id == "" {
			continue
		}
		out = append(out, Entry{
			ID:   id,
			Name: firstString(item.Raw, namePaths...),
		})
		if len(out) == maxEntries {
			break
		}
	}
	return out
}

func extractAddresses(sc *Context, args, result string) {
	items := firstArray(result, "data.addresses", "addresses", "data", "")
	if entries := toEntries(items,
		[]string{"id", "addressId", "_id"},
		[]string{"label", "name", "address", "formattedAddress", "street"}); len(entries) > 0 {
		sc.Addresses = entries
		if len(entries) == 1 {
			sc.AddressID = entries[0].ID
		}
	}
	if id := firstString(result, "data.addressId", "addressId", "data.address.id", "address.id"); id != "" {
		sc.AddressID = id
	} else if id := firstString(args, "addressId", "address_id"); id != "" {
		sc.AddressID = id
	}
}

func extractRestaurants(sc *Context, args, result string) {
	items := firstArray(result, "data.restaurants", "restaurants", "data", "")
	if entries := toEntries(items,
		[]string{"id", "restaurantId", "_id"},
		[]string{"name", "title"}); len(entries) > 0 {
		sc.Restaurants = entries
	}
	if id := firstString(result, "data.restaurantId", "restaurantId", "data.restaurant.id", "restaurant.id"); id != "" {
		sc.RestaurantID = id
	} else if id := firstString(args, "restaurantId", "restaurant_id"); id != "" {
		sc.RestaurantID = id
	}
}

func extractMenu(sc *Context, args, result string) {
	if id := firstString(args, "restaurantId", "restaurant_id"); id != "" {
		sc.RestaurantID = id
	} else if id := firstString(result, "data.restaurant.id", "restaurant.id", "data.restaurantId", "restaurantId"); id != "" {
		sc.RestaurantID = id
	}
}

func extractCart(sc *Context, args, result string) {
	if id := firstString(result, "data.cartId", "cartId", "data.cart.id", "cart.id"); id != "" {
		sc.CartID = id
	} else if id := firstString(args, "cartId", "cart_id"); id != "" {
		sc.CartID = id
	}
	if id := firstString(args, "restaurantId", "restaurant_id"); id != "" {
		sc.RestaurantID = id
	}
}
