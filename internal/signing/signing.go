// Package signing implements the remote media store's request signature
// scheme, used both for authorizing direct-from-client uploads and for
// destructive management calls.
package signing

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"sort"
	"strings"
)

// ErrNoParams is returned when a signature is requested over an empty
// parameter set.
var ErrNoParams = errors.New("signing: no parameters to sign")

// Sign computes the store signature for the given parameters: keys are
// sorted ascending, each pair rendered as key=value, pairs joined with "&",
// the secret appended directly (no separator), and the SHA-1 digest of the
// result returned as lowercase hex. Values are used verbatim, without
// escaping. The secret never appears in the output or in logs.
func Sign(params map[string]string, secret string) (string, error) {
	if len(params) == 0 {
		return "", ErrNoParams
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}

	sum := sha1.Sum([]byte(strings.Join(pairs, "&") + secret))
	return hex.EncodeToString(sum[:]), nil
}

// Credential is a single-use upload authorization tied to the exact
// timestamp and parameter set it was computed from. A stale timestamp is
// rejected by the store as a terminal failure.
type Credential struct {
	Signature string `json:"signature"`
	APIKey    string `json:"api_key"`
	CloudName string `json:"cloud_name"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// Issuer mints Credentials for callers that already hold the account
// secret. The secret itself is never part of the credential.
type Issuer struct {
	APIKey    string
	CloudName string
	Secret    string
}

// Issue signs the given parameter set and returns a credential carrying
// the signature and the public account identifiers.
func (i Issuer) Issue(params map[string]string) (Credential, error) {
	sig, err := Sign(params, i.Secret)
	if err != nil {
		return Credential{}, err
	}
	return Credential{
		Signature: sig,
		APIKey:    i.APIKey,
		CloudName: i.CloudName,
	}, nil
}
