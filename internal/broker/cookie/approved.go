package cookie

import (
	"encoding/json"
	"slices"

	platformstrings "authgate/pkg/platform/strings"
)

// ApprovedClients manages the signed cookie remembering which client IDs the
// user already consented to. Its content is only ever trusted after the HMAC
// re-verifies; a bad signature is treated as "no prior approvals" plus a
// security log at the call site, never as a parse-what-we-can fallback.
type ApprovedClients struct {
	signer *Signer
}

func NewApprovedClients(signer *Signer) *ApprovedClients {
	return &ApprovedClients{signer: signer}
}

// Decode returns the approved client IDs carried by the cookie value.
// Returns an error for a tampered or malformed value and an empty list for
// an absent one.
func (a *ApprovedClients) Decode(value string) ([]string, error) {
	if value == "" {
		return nil, nil
	}
	payload, err := a.signer.Verify(value)
	if err != nil {
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(payload, &ids); err != nil {
		return nil, err
	}
	return platformstrings.DedupeAndTrim(ids), nil
}

// Approve returns a freshly signed cookie value with clientID included.
// existing is the already-verified list from Decode.
func (a *ApprovedClients) Approve(existing []string, clientID string) (string, error) {
	ids := platformstrings.DedupeAndTrim(append(slices.Clone(existing), clientID))
	payload, err := json.Marshal(ids)
	if err != nil {
		return "", err
	}
	return a.signer.Sign(payload), nil
}

// Contains reports whether clientID is in the verified approval list.
func (a *ApprovedClients) Contains(ids []string, clientID string) bool {
	return clientID != "" && slices.Contains(ids, clientID)
}
