// Package admission decides, per asset candidate, whether it is queued for
// insertion or rejected with a typed reason. The pipeline is a pure decision
// function: it reads the ledger indexes and the lookup table and mutates
// neither.
package admission

import (
	"fmt"
	"strings"
	"time"

	"github.com/comfe-salud/rips-cli/internal/canon"
	"github.com/comfe-salud/rips-cli/internal/ledger"
)

// Reason is the single typed cause attached to a rejection. Rules run in
// fixed priority order and the first failure wins; reasons never accumulate.
type Reason string

const (
	ReasonDocOrTypeEmpty    Reason = "DOC_OR_TYPE_EMPTY"
	ReasonServiceEmpty      Reason = "SERVICE_EMPTY"
	ReasonNotInSubjects     Reason = "NOT_IN_SUBJECTS"
	ReasonNoMapping         Reason = "NO_MAPPING"
	ReasonNoHomologatedName Reason = "NO_HOMOLOGATED_NAME"
	ReasonServiceExcluded   Reason = "SERVICE_EXCLUDED"
	ReasonNoCode            Reason = "NO_CODE"
	ReasonNoBaseRow         Reason = "NO_BASE_ROW"
	ReasonBaseMissingValues Reason = "BASE_MISSING_VALUES"
	ReasonDuplicate         Reason = "DUPLICATE"
)

// sentinelExcluded is the homologated-name token that marks a service as
// intentionally excluded from the ledger.
const sentinelExcluded = "REMOVE"

// Candidate is one normalized asset row awaiting a decision.
type Candidate struct {
	Row        int // 1-based source row, for audit
	DocType    string
	DocRaw     string
	Doc        string // canonical document key
	ServiceRaw string
	Service    string // canonical text key
}

// NewCandidate canonicalizes the raw cell values of one source row.
func NewCandidate(row int, docType, doc, service any) Candidate {
	return Candidate{
		Row:        row,
		DocType:    rawString(docType),
		DocRaw:     rawString(doc),
		Doc:        canon.Document(doc),
		ServiceRaw: rawString(service),
		Service:    canon.Text(service),
	}
}

func rawString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// PlanRow is a candidate that passed every rule and is queued for insertion.
type PlanRow struct {
	Row        int // 1-based source row, for audit
	DocType    string
	Doc        string
	Date       time.Time
	Code       string
	Name       string
	BaseL      string
	BaseM      string
	BaseRow    int
	ServiceRaw string
}

// Rejection records why a candidate was not admitted. Never mutated after
// creation.
type Rejection struct {
	Row     int
	DocType string
	Doc     string
	Service string
	Reason  Reason
	Detail  string
}

// Decide runs the ten admission rules in priority order against the index
// snapshot. Exactly one of the results is non-nil. The dedupe set is only
// read here; committing accepted keys is the writer's job.
func Decide(c Candidate, date time.Time, idx *ledger.Indexes, lookup Lookup) (*PlanRow, *Rejection) {
	reject := func(reason Reason, detail string) (*PlanRow, *Rejection) {
		return nil, &Rejection{
			Row:     c.Row,
			DocType: c.DocType,
			Doc:     c.Doc,
			Service: c.ServiceRaw,
			Reason:  reason,
			Detail:  detail,
		}
	}

	if c.DocType == "" || c.Doc == "" {
		return reject(ReasonDocOrTypeEmpty, "")
	}
	if c.Service == "" {
		return reject(ReasonServiceEmpty, "")
	}
	if _, ok := idx.Identity[ledger.IdentityKey(c.DocType, c.Doc)]; !ok {
		return reject(ReasonNotInSubjects, "")
	}

	m, ok := lookup[c.Service]
	if !ok {
		return reject(ReasonNoMapping, c.Service)
	}
	name := strings.TrimSpace(m.Homologated)
	code := strings.TrimSpace(m.Code)
	if name == "" {
		return reject(ReasonNoHomologatedName, "")
	}
	if strings.EqualFold(name, sentinelExcluded) {
		return reject(ReasonServiceExcluded, "")
	}
	if code == "" {
		return reject(ReasonNoCode, "")
	}

	base, ok := idx.Base[c.Doc]
	if !ok {
		return reject(ReasonNoBaseRow, "")
	}
	if strings.TrimSpace(base.L) == "" || strings.TrimSpace(base.M) == "" {
		return reject(ReasonBaseMissingValues, fmt.Sprintf("L=%q M=%q", base.L, base.M))
	}

	key := ledger.AssetKey(c.Doc, code, date.Format("2006-01-02"))
	if _, ok := idx.AssetKeys[key]; ok {
		return reject(ReasonDuplicate, key)
	}

	return &PlanRow{
		Row:        c.Row,
		DocType:    c.DocType,
		Doc:        c.Doc,
		Date:       date,
		Code:       code,
		Name:       name,
		BaseL:      base.L,
		BaseM:      base.M,
		BaseRow:    base.Row,
		ServiceRaw: c.ServiceRaw,
	}, nil
}

// CountReasons aggregates rejections by reason for reporting.
func CountReasons(rejections []Rejection) map[Reason]int {
	counts := make(map[Reason]int, len(rejections))
	for _, r := range rejections {
		counts[r.Reason]++
	}
	return counts
}
