// Package batch normalizes inbound notice batches into one typed value that
// the rest of the service consumes.
package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

const DefaultNoticeType = "Legal Notice"

var caseNumberDisallowed = regexp.MustCompile(`[^A-Za-z0-9\-_/\s]`)

// IDCoercer maps external ids onto the legacy integer range.
// LookupSafeIntegerID must not create mappings.
type IDCoercer interface {
	ToSafeIntegerID(ctx context.Context, externalID string) (int64, error)
	LookupSafeIntegerID(ctx context.Context, externalID string) (int64, bool, error)
}

type NormalizedBatch struct {
	BatchID          string         `json:"batchId,omitempty" validate:"omitempty,max=128"`
	Recipients       []string       `json:"recipients" validate:"required,min=1,dive,tronaddr"`
	ServerAddress    string         `json:"serverAddress" validate:"required,tronaddr"`
	CaseNumber       string         `json:"caseNumber" validate:"max=128"`
	NoticeType       string         `json:"noticeType" validate:"required,max=128"`
	IssuingAgency    string         `json:"issuingAgency" validate:"max=256"`
	IPFSHash         string         `json:"ipfsHash,omitempty" validate:"omitempty,max=128"`
	EncryptionKey    string         `json:"-"`
	HasEncryptionKey bool           `json:"hasEncryptionKey"`
	AlertIDs         []int64        `json:"alertIds,omitempty"`
	DocumentIDs      []int64        `json:"documentIds,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

type Result struct {
	Valid    bool             `json:"valid"`
	Errors   []string         `json:"errors"`
	Warnings []string         `json:"warnings"`
	Data     *NormalizedBatch `json:"data,omitempty"`
}

type Validator struct {
	ids IDCoercer
	v   *validator.Validate
}

func NewValidator(ids IDCoercer) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("tronaddr", validateTronAddress)
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{ids: ids, v: v}
}

// Validate never rejects a batch for a single bad recipient: such entries
// are dropped with a warning. Only a missing or malformed server address,
// or no usable recipient at all, makes the batch invalid.
func (va *Validator) Validate(ctx context.Context, raw RawBatch) Result {
	return va.validate(ctx, raw, false)
}

// Preview applies the same rules as Validate without writing anything:
// external ids that are not mapped yet are reported, not assigned.
func (va *Validator) Preview(ctx context.Context, raw RawBatch) Result {
	return va.validate(ctx, raw, true)
}

func (va *Validator) validate(ctx context.Context, raw RawBatch, dryRun bool) Result {
	res := Result{Errors: []string{}, Warnings: []string{}}
	n := &NormalizedBatch{
		BatchID:       strings.TrimSpace(raw.BatchID),
		Recipients:    []string{},
		ServerAddress: strings.TrimSpace(raw.ServerAddress),
		CaseNumber:    SanitizeCaseNumber(raw.CaseNumber),
		NoticeType:    strings.TrimSpace(raw.NoticeType),
		IssuingAgency: strings.TrimSpace(raw.IssuingAgency),
		IPFSHash:      strings.TrimSpace(raw.IPFSHash),
		EncryptionKey: strings.TrimSpace(raw.EncryptionKey),
	}
	n.HasEncryptionKey = n.EncryptionKey != ""
	if n.NoticeType == "" {
		n.NoticeType = DefaultNoticeType
	}

	va.normalizeRecipients(raw.Recipients, n, &res)

	n.AlertIDs = va.coerceIDs(ctx, "alertIds", raw.AlertIDs, dryRun, &res)
	n.DocumentIDs = va.coerceIDs(ctx, "documentIds", raw.DocumentIDs, dryRun, &res)
	if len(n.AlertIDs) > 0 && len(n.AlertIDs) != len(n.Recipients) {
		res.Warnings = append(res.Warnings, fmt.Sprintf("alertIds count %d does not match recipients count %d", len(n.AlertIDs), len(n.Recipients)))
	}
	if len(n.DocumentIDs) > 0 && len(n.DocumentIDs) != len(n.Recipients) {
		res.Warnings = append(res.Warnings, fmt.Sprintf("documentIds count %d does not match recipients count %d", len(n.DocumentIDs), len(n.Recipients)))
	}

	if meta := strings.TrimSpace(raw.Metadata); meta != "" {
		var m map[string]any
		if err := json.Unmarshal([]byte(meta), &m); err != nil {
			res.Warnings = append(res.Warnings, "metadata is not a JSON object and was ignored")
		} else {
			n.Metadata = m
		}
	}

	if err := va.v.Struct(n); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				res.Errors = append(res.Errors, describe(fe))
			}
		} else {
			res.Errors = append(res.Errors, err.Error())
		}
	}

	res.Valid = len(res.Errors) == 0
	res.Data = n
	return res
}

func (va *Validator) normalizeRecipients(values []string, n *NormalizedBatch, res *Result) {
	seen := make(map[string]struct{})
	for _, v := range values {
		list, err := splitList(v)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("recipients: %v", err))
			continue
		}
		for _, addr := range list {
			if addr == "" {
				continue
			}
			if why := tronAddressProblem(addr); why != "" {
				res.Warnings = append(res.Warnings, fmt.Sprintf("dropped invalid recipient address %q: %s", addr, why))
				continue
			}
			if _, dup := seen[addr]; dup {
				res.Warnings = append(res.Warnings, fmt.Sprintf("dropped duplicate recipient %s", addr))
				continue
			}
			seen[addr] = struct{}{}
			n.Recipients = append(n.Recipients, addr)
		}
	}
}

func (va *Validator) coerceIDs(ctx context.Context, field, raw string, dryRun bool, res *Result) []int64 {
	list, err := splitList(raw)
	if err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%s ignored: %v", field, err))
		return nil
	}
	if len(list) == 0 {
		return nil
	}
	out := make([]int64, 0, len(list))
	for i, s := range list {
		if s == "" {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s[%d] is empty and was skipped", field, i))
			continue
		}
		if dryRun {
			id, ok, err := va.ids.LookupSafeIntegerID(ctx, s)
			switch {
			case err != nil:
				res.Warnings = append(res.Warnings, fmt.Sprintf("%s[%d] could not be coerced: %v", field, i, err))
			case !ok:
				res.Warnings = append(res.Warnings, fmt.Sprintf("%s[%d] %q is not mapped yet; an id is assigned on upload", field, i, s))
			default:
				out = append(out, id)
			}
			continue
		}
		id, err := va.ids.ToSafeIntegerID(ctx, s)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s[%d] could not be coerced: %v", field, i, err))
			continue
		}
		out = append(out, id)
	}
	return out
}

// SanitizeCaseNumber keeps letters, digits, dash, underscore, slash and
// whitespace.
func SanitizeCaseNumber(s string) string {
	return strings.TrimSpace(caseNumberDisallowed.ReplaceAllString(s, ""))
}

func describe(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required", "min":
		if field == "recipients" {
			return "recipients must contain at least one valid TRON address"
		}
		return field + " is required"
	case "tronaddr":
		return field + " must be a TRON address (T prefix, 34 base58 characters)"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
