package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"

	"golang.org/x/crypto/hkdf"
)

const keySize = 32

// keys holds the purpose-specific keys derived from the configured secret.
type keys struct {
	session []byte
	state   []byte
}

// deriveKeys expands secret into independent keys for session ids and
// OAuth state tokens. An empty secret gets a random one, which invalidates
// sessions and pending logins on restart.
func deriveKeys(secret string) (keys, error) {
	ikm := []byte(secret)
	if len(ikm) == 0 {
		ikm = make([]byte, keySize)
		if _, err := rand.Read(ikm); err != nil {
			return keys{}, fmt.Errorf("generate secret: %w", err)
		}
	}
	var k keys
	var err error
	if k.session, err = expand(ikm, "taskforge session id"); err != nil {
		return keys{}, err
	}
	if k.state, err = expand(ikm, "taskforge oauth state"); err != nil {
		return keys{}, err
	}
	return k, nil
}

func expand(ikm []byte, info string) ([]byte, error) {
	out := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, ikm, nil, []byte(info)), out); err != nil {
		return nil, fmt.Errorf("derive %s key: %w", info, err)
	}
	return out, nil
}

// sessionKey maps a GitHub user id to its session id. The mapping is stable
// so a new login replaces the previous session.
func (k keys) sessionKey(userID int64) string {
	mac := hmac.New(sha256.New, k.session)
	mac.Write([]byte(strconv.FormatInt(userID, 10))) //nolint:errcheck
	return hex.EncodeToString(mac.Sum(nil))
}
