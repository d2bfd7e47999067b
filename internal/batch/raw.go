package batch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// RawBatch is the request as received: every field is still the string a
// multipart form or a loose JSON body carried.
type RawBatch struct {
	BatchID       string
	Recipients    []string
	CaseNumber    string
	ServerAddress string
	NoticeType    string
	IssuingAgency string
	IPFSHash      string
	EncryptionKey string
	AlertIDs      string
	DocumentIDs   string
	Metadata      string
}

type jsonBatch struct {
	BatchID       json.RawMessage `json:"batchId"`
	Recipients    json.RawMessage `json:"recipients"`
	CaseNumber    json.RawMessage `json:"caseNumber"`
	ServerAddress json.RawMessage `json:"serverAddress"`
	NoticeType    json.RawMessage `json:"noticeType"`
	IssuingAgency json.RawMessage `json:"issuingAgency"`
	IPFSHash      json.RawMessage `json:"ipfsHash"`
	EncryptionKey json.RawMessage `json:"encryptionKey"`
	AlertIDs      json.RawMessage `json:"alertIds"`
	DocumentIDs   json.RawMessage `json:"documentIds"`
	Metadata      json.RawMessage `json:"metadata"`
}

// RawBatchFromJSON accepts a JSON body where arrays may be real arrays or
// strings holding JSON/CSV, and scalars may be strings or numbers.
func RawBatchFromJSON(body []byte) (RawBatch, error) {
	var jb jsonBatch
	if err := json.Unmarshal(body, &jb); err != nil {
		return RawBatch{}, fmt.Errorf("decode batch body: %w", err)
	}
	raw := RawBatch{
		BatchID:       scalar(jb.BatchID),
		CaseNumber:    scalar(jb.CaseNumber),
		ServerAddress: scalar(jb.ServerAddress),
		NoticeType:    scalar(jb.NoticeType),
		IssuingAgency: scalar(jb.IssuingAgency),
		IPFSHash:      scalar(jb.IPFSHash),
		EncryptionKey: scalar(jb.EncryptionKey),
		AlertIDs:      scalar(jb.AlertIDs),
		DocumentIDs:   scalar(jb.DocumentIDs),
		Metadata:      scalar(jb.Metadata),
	}
	if r := scalar(jb.Recipients); r != "" {
		raw.Recipients = []string{r}
	}
	return raw, nil
}

// scalar turns a JSON value into its form-field equivalent: strings are
// unquoted, everything else keeps its JSON text.
func scalar(m json.RawMessage) string {
	m = bytes.TrimSpace(m)
	if len(m) == 0 || bytes.Equal(m, []byte("null")) {
		return ""
	}
	if m[0] == '"' {
		var s string
		if err := json.Unmarshal(m, &s); err == nil {
			return s
		}
	}
	return string(m)
}

// splitList reads a JSON array of scalars, or falls back to comma
// separated values.
func splitList(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if strings.HasPrefix(s, "[") {
		var items []json.RawMessage
		if err := json.Unmarshal([]byte(s), &items); err != nil {
			return nil, fmt.Errorf("malformed JSON array: %w", err)
		}
		out := make([]string, 0, len(items))
		for _, it := range items {
			out = append(out, strings.TrimSpace(scalar(it)))
		}
		return out, nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out, nil
}
