package session

import (
	"crypto/rand"
	"math/big"

	"github.com/microcosm-game/microcosm-server/errors"
	"github.com/microcosm-game/microcosm-server/messages"
)

// joinCodeAlphabet holds the characters join codes are built from. Ambiguous
// characters (0/O, 1/I) are left out since players relay codes verbally.
const joinCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// joinCodeLength is the length of generated join codes.
const joinCodeLength = 4

// GenerateJoinCode creates a random join code. Uniqueness among live matches
// is up to the caller.
func GenerateJoinCode() (messages.MatchID, error) {
	code := make([]byte, joinCodeLength)
	for i := range code {
		index, err := rand.Int(rand.Reader, big.NewInt(int64(len(joinCodeAlphabet))))
		if err != nil {
			return "", errors.NewInternalError("generate join code", errors.Details{"position": i})
		}
		code[i] = joinCodeAlphabet[index.Int64()]
	}
	return messages.MatchID(code), nil
}
