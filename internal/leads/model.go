package leads

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Contact field keys shared with the extraction prompt and the CRM payload.
const (
	FieldName    = "Name"
	FieldCompany = "Company"
	FieldEmail   = "Email"
	FieldPhone   = "Phone"
)

// Sentinel marks a field that is known to be unknown.
const Sentinel = "N/A"

// AllFields lists the keys a contact record may carry, in prompt order.
var AllFields = []string{FieldName, FieldCompany, FieldEmail, FieldPhone}

// RequiredFields must be user-supplied before a lead can be created.
// Company is filled from configuration and never asked for.
var RequiredFields = []string{FieldName, FieldEmail, FieldPhone}

// Fields is the accumulating, possibly incomplete contact record of a session.
// Absent keys are unknown.
type Fields map[string]string

// IsMissingValue reports whether v counts as "not yet known".
func IsMissingValue(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || v == Sentinel
}

// Clone returns an independent copy. A nil receiver yields an empty record.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Value returns the field value when it is present and not a sentinel.
func (f Fields) Value(key string) (string, bool) {
	v, ok := f[key]
	if !ok || IsMissingValue(v) {
		return "", false
	}
	return v, true
}

// Missing returns the required fields still unknown, in RequiredFields order.
func (f Fields) Missing() []string {
	var missing []string
	for _, key := range RequiredFields {
		if _, ok := f.Value(key); !ok {
			missing = append(missing, key)
		}
	}
	return missing
}

// Complete reports whether Name, Email and Phone are all known.
func (f Fields) Complete() bool {
	return len(f.Missing()) == 0
}

// HasSentinel reports whether any value is the literal "N/A".
func (f Fields) HasSentinel() bool {
	for _, v := range f {
		if strings.TrimSpace(v) == Sentinel {
			return true
		}
	}
	return false
}

// Merge overlays extracted values onto a copy of f. A value replaces the
// previous one only when it is non-null and not blank or "N/A", so captured
// fields never regress to unknown. Keys outside AllFields are ignored.
func (f Fields) Merge(extracted map[string]any) Fields {
	out := f.Clone()
	for _, key := range AllFields {
		raw, ok := extracted[key]
		if !ok || raw == nil {
			continue
		}
		var v string
		switch typed := raw.(type) {
		case string:
			v = typed
		case float64:
			// numeric phone numbers come back unquoted from some models
			v = strconv.FormatFloat(typed, 'f', -1, 64)
		default:
			continue
		}
		v = strings.TrimSpace(v)
		if IsMissingValue(v) {
			continue
		}
		out[key] = v
	}
	return out
}

// WithCompany returns a copy with Company forced to the given constant.
func (f Fields) WithCompany(company string) Fields {
	out := f.Clone()
	out[FieldCompany] = company
	return out
}

// String renders the record deterministically for prompts and logs.
func (f Fields) String() string {
	if len(f) == 0 {
		return "None"
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, f[k]))
	}
	return strings.Join(parts, ", ")
}

// Lead is the local ledger entry mirroring a lead created in the CRM.
type Lead struct {
	ID          string    `json:"id"`
	CRMID       string    `json:"crm_id"`
	Name        string    `json:"name"`
	Company     string    `json:"company"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone"`
	MeetingSlot string    `json:"meeting_slot,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RecordRequest captures a CRM lead for the local ledger.
type RecordRequest struct {
	CRMID  string
	Fields Fields
}

// Validate validates the record request
func (r *RecordRequest) Validate() error {
	if strings.TrimSpace(r.CRMID) == "" {
		return ErrMissingCRMID
	}
	if _, ok := r.Fields.Value(FieldName); !ok {
		return ErrInvalidName
	}
	_, hasEmail := r.Fields.Value(FieldEmail)
	_, hasPhone := r.Fields.Value(FieldPhone)
	if !hasEmail && !hasPhone {
		return ErrMissingContact
	}
	return nil
}
