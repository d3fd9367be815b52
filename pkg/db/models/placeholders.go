package models

import "github.com/google/uuid"

// Fixed rows seeded by the migrations. Transactions synthesized from a
// gateway notification that arrived before its checkout are bound to them
// until the real checkout data merges in.
var (
	PlaceholderCustomerID = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	PlaceholderProductID  = uuid.MustParse("00000000-0000-0000-0000-000000000002")
)
