package article

import (
	"strings"

	"inkwell/api/internal/store"
)

// PaywallMarker separates the free preview from the paid remainder in an
// article body.
const PaywallMarker = `<p class="paywall-line">`

const (
	MinPrice int64 = 1
	MaxPrice int64 = 100000
)

// splitPaid returns the preview (everything before the marker) and the full
// text. ok is false when the body has no marker.
func splitPaid(body string) (preview, full string, ok bool) {
	idx := strings.Index(body, PaywallMarker)
	if idx < 0 {
		return "", body, false
	}
	return body[:idx], body, true
}

// draftText is the canonical full text of an unpublished article. A publish
// interrupted after splitting leaves the full text in paid_body.
func draftText(content store.ArticleContent) *string {
	if content.PaidBody != nil {
		return content.PaidBody
	}
	return content.Body
}

func validatePrice(price int64) error {
	if price < MinPrice || price > MaxPrice {
		return validationError("price must be between 1 and 100000")
	}
	return nil
}

// paidContent builds the content write for publishing body, splitting it when
// the article is sold.
func paidContent(body *string, price *int64) (store.ContentUpdate, error) {
	if price == nil {
		return store.ContentUpdate{
			Body:     store.SetTo(body),
			PaidBody: store.SetTo[string](nil),
		}, nil
	}
	if body == nil {
		return store.ContentUpdate{}, validationError("paid article body must contain a paywall line")
	}
	preview, full, ok := splitPaid(*body)
	if !ok {
		return store.ContentUpdate{}, validationError("paid article body must contain a paywall line")
	}
	return store.ContentUpdate{
		Body:     store.SetTo(&preview),
		PaidBody: store.SetTo(&full),
	}, nil
}
