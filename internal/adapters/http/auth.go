package http

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/classmesh/sfu/internal/domain"
	"github.com/classmesh/sfu/internal/sfu"
)

// Claims binds a signaling connection to one participant in one room. The
// lobby service issues the token; this process only verifies it.
type Claims struct {
	Client    domain.ClientID `json:"client"`
	Room      domain.RoomID   `json:"room"`
	Name      string          `json:"name"`
	Role      domain.Role     `json:"role"`
	ExpiresAt int64           `json:"exp"`
}

// Verifier checks a signaling token and returns its claims.
type Verifier interface {
	Verify(token string) (*Claims, error)
}

// HMACVerifier validates tokens of the form base64(claims).base64(sig)
// where sig is HMAC-SHA256 over the claims bytes.
type HMACVerifier struct {
	secret []byte
	now    func() time.Time
}

func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret), now: time.Now}
}

func (v *HMACVerifier) Verify(token string) (*Claims, error) {
	if token == "" {
		return nil, sfu.E(sfu.CodeAuthMissing, "missing token")
	}
	dot := strings.IndexByte(token, '.')
	if dot < 0 {
		return nil, sfu.E(sfu.CodeAuthMismatch, "malformed token")
	}
	body, err := base64.RawURLEncoding.DecodeString(token[:dot])
	if err != nil {
		return nil, sfu.E(sfu.CodeAuthMismatch, "malformed token body")
	}
	sig, err := base64.RawURLEncoding.DecodeString(token[dot+1:])
	if err != nil {
		return nil, sfu.E(sfu.CodeAuthMismatch, "malformed token signature")
	}
	if !hmac.Equal(sig, v.sign(body)) {
		return nil, sfu.E(sfu.CodeAuthMismatch, "signature mismatch")
	}
	var claims Claims
	if err := json.Unmarshal(body, &claims); err != nil {
		return nil, sfu.E(sfu.CodeAuthMismatch, "malformed claims")
	}
	if claims.ExpiresAt > 0 && v.now().Unix() > claims.ExpiresAt {
		return nil, sfu.E(sfu.CodeAuthExpired, "token expired")
	}
	if claims.Client == "" || claims.Room == "" {
		return nil, sfu.E(sfu.CodeAuthMismatch, "incomplete claims")
	}
	return &claims, nil
}

// Sign produces a token for the given claims. Exported for test setups
// and local tooling; production tokens come from the lobby.
func (v *HMACVerifier) Sign(claims Claims) (string, error) {
	body, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(body) + "." +
		base64.RawURLEncoding.EncodeToString(v.sign(body)), nil
}

func (v *HMACVerifier) sign(body []byte) []byte {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	return mac.Sum(nil)
}
