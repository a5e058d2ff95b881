package account

import (
	"strings"

	"custodian/internal/docstore"
)

// NormalizeEmailPatch lowercases the email of legacy user documents written
// before the email field rule enforced lowercase on input.
type NormalizeEmailPatch struct{}

func (NormalizeEmailPatch) Name() string { return "normalize-email" }

func (NormalizeEmailPatch) Relevant(doc docstore.Document) bool {
	if doc.Doctype != docstore.DoctypeUser {
		return false
	}
	email := doc.String(FieldEmail)
	return email != "" && email != strings.ToLower(email)
}

func (NormalizeEmailPatch) Apply(doc *docstore.Document) (bool, error) {
	email := doc.String(FieldEmail)
	lowered := strings.ToLower(email)
	if email == lowered {
		return false, nil
	}
	doc.Fields[FieldEmail] = lowered
	return true, nil
}
