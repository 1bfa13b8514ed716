package scambus

import (
	"fmt"
	"strings"
)

var validIdentifierTypes = map[string]bool{
	IdentifierTypePhone:        true,
	IdentifierTypeEmail:        true,
	IdentifierTypeURL:          true,
	IdentifierTypeBankAccount:  true,
	IdentifierTypeCryptoWallet: true,
	IdentifierTypeSocialMedia:  true,
	IdentifierTypeZelle:        true,
	IdentifierTypePaymentToken: true,
}

// BuildIdentifierTypeFilter builds the JSONPath expression selecting the
// given identifier types. On identifier streams the message itself carries
// the type; on journal-entry streams the filter has to look inside the
// embedded identifiers array.
func BuildIdentifierTypeFilter(types []string, dataType DataType) (string, error) {
	if len(types) == 0 {
		return "", nil
	}
	for _, t := range types {
		if !validIdentifierTypes[t] {
			return "", ValidationError{APIError{Message: fmt.Sprintf("invalid identifier type %q", t)}}
		}
	}

	if dataType == DataTypeJournalEntry {
		clauses := make([]string, len(types))
		for i, t := range types {
			clauses[i] = fmt.Sprintf("@.type == %q", t)
		}
		return fmt.Sprintf("exists($.identifiers[*] ? (%s))", strings.Join(clauses, " || ")), nil
	}

	clauses := make([]string, len(types))
	for i, t := range types {
		clauses[i] = fmt.Sprintf("$.type == %q", t)
	}
	return strings.Join(clauses, " || "), nil
}

// CombinedFilter is the input to BuildCombinedFilter.
type CombinedFilter struct {
	IdentifierTypes  []string
	MinConfidence    *float64
	MaxConfidence    *float64
	CustomExpression string
	DataType         DataType
}

// BuildCombinedFilter combines identifier type, confidence bounds, and a
// custom expression into one filter expression joined with &&. An empty
// input yields an empty expression (no filtering).
func BuildCombinedFilter(f CombinedFilter) (string, error) {
	var clauses []string

	typeClause, err := BuildIdentifierTypeFilter(f.IdentifierTypes, f.DataType)
	if err != nil {
		return "", err
	}
	if typeClause != "" {
		// Parenthesize multi-type alternations so && binds correctly.
		if len(f.IdentifierTypes) > 1 {
			typeClause = "(" + typeClause + ")"
		}
		clauses = append(clauses, typeClause)
	}

	// Journal entry streams store confidence in min_confidence.
	confidenceField := "$.confidence"
	if f.DataType == DataTypeJournalEntry {
		confidenceField = "$.min_confidence"
	}

	if f.MinConfidence != nil {
		if *f.MinConfidence < 0 || *f.MinConfidence > 1 {
			return "", ValidationError{APIError{Message: "min_confidence must be between 0 and 1"}}
		}
		clauses = append(clauses, fmt.Sprintf("%s >= %v", confidenceField, *f.MinConfidence))
	}
	if f.MaxConfidence != nil {
		if *f.MaxConfidence < 0 || *f.MaxConfidence > 1 {
			return "", ValidationError{APIError{Message: "max_confidence must be between 0 and 1"}}
		}
		clauses = append(clauses, fmt.Sprintf("%s <= %v", confidenceField, *f.MaxConfidence))
	}

	if f.CustomExpression != "" {
		clauses = append(clauses, f.CustomExpression)
	}

	return strings.Join(clauses, " && "), nil
}

// Expression renders the filter as the expression attached to an export
// stream at creation time.
func (f StreamFilter) Expression(dataType DataType) (string, error) {
	return BuildCombinedFilter(CombinedFilter{
		IdentifierTypes:  f.IdentifierTypes,
		MinConfidence:    f.MinConfidence,
		MaxConfidence:    f.MaxConfidence,
		CustomExpression: f.CustomExpression,
		DataType:         dataType,
	})
}
