package version

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/reddwarf-sh/reddwarf/pkg/apierrors"
)

// canonicalCommit is the subset of Commit fields whose encoding determines
// commit_id. ID itself is excluded — it's what we're computing — and
// Changes.NewBytes is included so two puts with identical keys and parents
// but different payloads hash differently.
type canonicalCommit struct {
	Parents   []string  `json:"parents"`
	Changes   []Change  `json:"changes"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// computeCommitID hashes the canonical encoding of a commit's content,
// per spec: "the hash of (canonically-encoded parents list, timestamp,
// canonical change set, message)". json.Marshal on a fixed struct with
// fixed field order is canonical enough here since every caller builds
// the struct the same way — there is no map whose key order could vary.
func computeCommitID(parents []string, timestamp time.Time, changes []Change, message string) (string, error) {
	cc := canonicalCommit{Parents: parents, Changes: changes, Timestamp: timestamp, Message: message}
	raw, err := json.Marshal(cc)
	if err != nil {
		return "", apierrors.Wrap(apierrors.Internal, err, "encode commit for hashing")
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
