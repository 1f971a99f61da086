package notif

import (
	"encoding/json"
	"strings"
)

// Category is a closed set so channel selection can switch exhaustively
// instead of falling through on unknown strings.
type Category int

const (
	CategoryOther Category = iota
	CategoryTransaction
	CategoryLoan
	CategoryKYC
	CategoryAccount
)

func (c Category) String() string {
	switch c {
	case CategoryTransaction:
		return "transaction"
	case CategoryLoan:
		return "loan"
	case CategoryKYC:
		return "kyc"
	case CategoryAccount:
		return "account"
	default:
		return "other"
	}
}

// ParseCategory maps a wire string to a Category. Unknown values map to
// CategoryOther so a misbehaving feed degrades to the default channel
// treatment instead of being dropped.
func ParseCategory(s string) Category {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "transaction":
		return CategoryTransaction
	case "loan":
		return CategoryLoan
	case "kyc":
		return CategoryKYC
	case "account":
		return CategoryAccount
	default:
		return CategoryOther
	}
}

// CategoryOf derives the category from a wire type string. The feed only
// sends the fine-grained type ("loan_approved", "kyc_rejected", ...); the
// category is the prefix family.
func CategoryOf(typ string) Category {
	t := strings.ToLower(strings.TrimSpace(typ))
	switch {
	case t == "transaction" || t == "credit" || t == "debit" || strings.HasPrefix(t, "transaction"):
		return CategoryTransaction
	case strings.HasPrefix(t, "loan"):
		return CategoryLoan
	case strings.HasPrefix(t, "kyc"):
		return CategoryKYC
	case strings.HasPrefix(t, "account") || t == "default_account":
		return CategoryAccount
	default:
		return ParseCategory(t)
	}
}

func (c Category) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Category) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*c = ParseCategory(s)
	return nil
}
