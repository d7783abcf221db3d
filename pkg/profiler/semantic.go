package profiler

import (
	"strings"
	"time"
	"unicode"

	"github.com/leapstack-labs/leapprofile/pkg/core"
)

// declaredTypeNames maps storage type names, with any width suffix such
// as int8 or float4 removed, to semantic types.
var declaredTypeNames = map[string]core.SemanticDomainType{
	"bool": core.SemanticTypeLogic, "boolean": core.SemanticTypeLogic,
	"bit": core.SemanticTypeLogic, "logical": core.SemanticTypeLogic,

	"money": core.SemanticTypeCurrency, "smallmoney": core.SemanticTypeCurrency,

	"uuid": core.SemanticTypeIdentifier, "uniqueidentifier": core.SemanticTypeIdentifier,

	"timestamp": core.SemanticTypeDatetime, "timestamptz": core.SemanticTypeDatetime,
	"datetime": core.SemanticTypeDatetime, "smalldatetime": core.SemanticTypeDatetime,
	"datetimeoffset": core.SemanticTypeDatetime, "date": core.SemanticTypeDatetime,
	"time": core.SemanticTypeDatetime, "timetz": core.SemanticTypeDatetime,

	"blob": core.SemanticTypeBinary, "tinyblob": core.SemanticTypeBinary,
	"mediumblob": core.SemanticTypeBinary, "longblob": core.SemanticTypeBinary,
	"binary": core.SemanticTypeBinary, "varbinary": core.SemanticTypeBinary,
	"bytea": core.SemanticTypeBinary,

	"int": core.SemanticTypeNumeric, "integer": core.SemanticTypeNumeric,
	"tinyint": core.SemanticTypeNumeric, "smallint": core.SemanticTypeNumeric,
	"mediumint": core.SemanticTypeNumeric, "bigint": core.SemanticTypeNumeric,
	"hugeint": core.SemanticTypeNumeric, "uint": core.SemanticTypeNumeric,
	"utinyint": core.SemanticTypeNumeric, "usmallint": core.SemanticTypeNumeric,
	"uinteger": core.SemanticTypeNumeric, "ubigint": core.SemanticTypeNumeric,
	"uhugeint": core.SemanticTypeNumeric, "serial": core.SemanticTypeNumeric,
	"smallserial": core.SemanticTypeNumeric, "bigserial": core.SemanticTypeNumeric,
	"float": core.SemanticTypeNumeric, "double": core.SemanticTypeNumeric,
	"real": core.SemanticTypeNumeric, "decimal": core.SemanticTypeNumeric,
	"dec": core.SemanticTypeNumeric, "numeric": core.SemanticTypeNumeric,
	"number": core.SemanticTypeNumeric,

	"char": core.SemanticTypeText, "character": core.SemanticTypeText,
	"varchar": core.SemanticTypeText, "nchar": core.SemanticTypeText,
	"nvarchar": core.SemanticTypeText, "bpchar": core.SemanticTypeText,
	"text": core.SemanticTypeText, "tinytext": core.SemanticTypeText,
	"mediumtext": core.SemanticTypeText, "longtext": core.SemanticTypeText,
	"ntext": core.SemanticTypeText, "string": core.SemanticTypeText,
	"clob": core.SemanticTypeText, "nclob": core.SemanticTypeText,

	"interval": core.SemanticTypeMiscellaneous, "json": core.SemanticTypeMiscellaneous,
	"jsonb": core.SemanticTypeMiscellaneous, "struct": core.SemanticTypeMiscellaneous,
	"list": core.SemanticTypeMiscellaneous, "map": core.SemanticTypeMiscellaneous,
	"union": core.SemanticTypeMiscellaneous, "array": core.SemanticTypeMiscellaneous,
}

// declaredSemanticType classifies a declared storage type by its first
// known type word, so "DOUBLE PRECISION" is numeric and "UNSIGNED BIGINT"
// skips the modifier. Words are matched whole: POINT is not an int.
func declaredSemanticType(declared string) core.SemanticDomainType {
	words := strings.FieldsFunc(strings.ToLower(declared), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		w = strings.TrimRightFunc(w, unicode.IsDigit)
		if t, ok := declaredTypeNames[w]; ok {
			return t
		}
	}
	return core.SemanticTypeUnknown
}

// InferSemanticType classifies a column. Identifier-like names win, then
// the declared storage type; sampled values are only consulted when the
// declared type is empty.
func InferSemanticType(column, declaredType string, sample []any) core.SemanticDomainType {
	name := strings.ToLower(column)
	if name == "id" || strings.HasSuffix(name, "_id") {
		return core.SemanticTypeIdentifier
	}

	if strings.TrimSpace(declaredType) != "" {
		return declaredSemanticType(declaredType)
	}

	return inferFromValues(sample)
}

func inferFromValues(sample []any) core.SemanticDomainType {
	var seen core.SemanticDomainType
	for _, v := range sample {
		if v == nil {
			continue
		}
		t := valueSemanticType(v)
		if seen == "" {
			seen = t
			continue
		}
		if seen != t {
			return core.SemanticTypeMiscellaneous
		}
	}
	if seen == "" {
		return core.SemanticTypeUnknown
	}
	return seen
}

func valueSemanticType(v any) core.SemanticDomainType {
	switch t := v.(type) {
	case bool:
		return core.SemanticTypeLogic
	case time.Time:
		return core.SemanticTypeDatetime
	case []byte:
		return core.SemanticTypeBinary
	case string:
		if looksLikeTime(t) {
			return core.SemanticTypeDatetime
		}
		return core.SemanticTypeText
	}
	if _, ok := toFloat(v); ok {
		return core.SemanticTypeNumeric
	}
	return core.SemanticTypeMiscellaneous
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02"}

func looksLikeTime(s string) bool {
	for _, layout := range timeLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

// parseSemanticTypes converts configured names, rejecting unknown ones.
func parseSemanticTypes(option string, names []string) ([]core.SemanticDomainType, error) {
	out := make([]core.SemanticDomainType, 0, len(names))
	for _, n := range names {
		t, ok := core.ParseSemanticType(n)
		if !ok {
			return nil, core.NewConfigError(core.ConfigInvalidOption, "%s: unknown semantic type %q", option, n)
		}
		out = append(out, t)
	}
	return out, nil
}

func containsSemantic(list []core.SemanticDomainType, t core.SemanticDomainType) bool {
	for _, e := range list {
		if e == t {
			return true
		}
	}
	return false
}
