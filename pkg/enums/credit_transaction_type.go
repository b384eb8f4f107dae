package enums

import "fmt"

// CreditTransactionType classifies ledger entries. Usage is negative, the rest positive.
type CreditTransactionType string

const (
	CreditTransactionPurchase CreditTransactionType = "purchase"
	CreditTransactionUsage    CreditTransactionType = "usage"
	CreditTransactionBonus    CreditTransactionType = "bonus"
	CreditTransactionRefund   CreditTransactionType = "refund"
)

var validCreditTransactionTypes = []CreditTransactionType{
	CreditTransactionPurchase,
	CreditTransactionUsage,
	CreditTransactionBonus,
	CreditTransactionRefund,
}

// String implements fmt.Stringer.
func (t CreditTransactionType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known CreditTransactionType.
func (t CreditTransactionType) IsValid() bool {
	for _, candidate := range validCreditTransactionTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// IsDebit reports whether entries of this type reduce the balance.
func (t CreditTransactionType) IsDebit() bool {
	return t == CreditTransactionUsage
}

// ParseCreditTransactionType converts raw input into a CreditTransactionType.
func ParseCreditTransactionType(value string) (CreditTransactionType, error) {
	for _, candidate := range validCreditTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid credit transaction type %q", value)
}
