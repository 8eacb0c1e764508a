package domain

// SubjectType differentiates token holders.
type SubjectType string

const (
	SubjectTypeOperator SubjectType = "OPERATOR"
)
