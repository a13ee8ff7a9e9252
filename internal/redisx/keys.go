package redisx

import (
	"fmt"
	"time"
)

const (
	// order status cache: order_status:{order_id} -> status
	KeyOrderStatus = "order_status:%s"

	// idempotent order placement: idem:order:create:{customer_id}:{key} -> order_id
	KeyIdemOrderCreate = "idem:order:create:%s:%s"

	// cart:{user_id} -> hash product_id -> json line
	KeyCart = "cart:%s"

	// wishlist:{user_id} -> set of product ids
	KeyWishlist = "wishlist:%s"
)

var (
	TTLStatusCache = 5 * time.Minute
	TTLIdempotency = 24 * time.Hour
	TTLCart        = 30 * 24 * time.Hour
)

// Key formats one of the templates above under prefix.
func Key(prefix, template string, args ...interface{}) string {
	return prefix + fmt.Sprintf(template, args...)
}
