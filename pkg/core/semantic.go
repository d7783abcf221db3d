package core

import "strings"

// SemanticDomainType is the inferred meaning of a column's values.
type SemanticDomainType string

// Semantic domain types.
const (
	SemanticTypeNumeric       SemanticDomainType = "numeric"
	SemanticTypeText          SemanticDomainType = "text"
	SemanticTypeLogic         SemanticDomainType = "logic"
	SemanticTypeDatetime      SemanticDomainType = "datetime"
	SemanticTypeBinary        SemanticDomainType = "binary"
	SemanticTypeCurrency      SemanticDomainType = "currency"
	SemanticTypeIdentifier    SemanticDomainType = "identifier"
	SemanticTypeMiscellaneous SemanticDomainType = "miscellaneous"
	SemanticTypeUnknown       SemanticDomainType = "unknown"
)

// AllSemanticTypes lists every semantic type in declaration order.
var AllSemanticTypes = []SemanticDomainType{
	SemanticTypeNumeric,
	SemanticTypeText,
	SemanticTypeLogic,
	SemanticTypeDatetime,
	SemanticTypeBinary,
	SemanticTypeCurrency,
	SemanticTypeIdentifier,
	SemanticTypeMiscellaneous,
	SemanticTypeUnknown,
}

// ParseSemanticType converts a string to a SemanticDomainType.
// "boolean" and "bool" are accepted as aliases of logic.
func ParseSemanticType(s string) (SemanticDomainType, bool) {
	norm := strings.ToLower(strings.TrimSpace(s))
	switch norm {
	case "boolean", "bool":
		return SemanticTypeLogic, true
	}
	for _, t := range AllSemanticTypes {
		if string(t) == norm {
			return t, true
		}
	}
	return SemanticTypeUnknown, false
}
