package mqttcore

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1" //nolint:gosec // SCRAM-SHA-1 interop requires it
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"
	"hash"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// SCRAMHash selects the hash family for a SCRAM exchange.
type SCRAMHash int

const (
	SCRAMHashSHA1 SCRAMHash = iota
	SCRAMHashSHA256
	SCRAMHashSHA512
)

// String returns the MQTT Authentication Method name for this hash.
func (h SCRAMHash) String() string {
	switch h {
	case SCRAMHashSHA1:
		return "SCRAM-SHA-1"
	case SCRAMHashSHA512:
		return "SCRAM-SHA-512"
	default:
		return "SCRAM-SHA-256"
	}
}

func (h SCRAMHash) newHash() func() hash.Hash {
	switch h {
	case SCRAMHashSHA1:
		return sha1.New
	case SCRAMHashSHA512:
		return sha512.New
	default:
		return sha256.New
	}
}

func (h SCRAMHash) keySize() int {
	switch h {
	case SCRAMHashSHA1:
		return 20
	case SCRAMHashSHA512:
		return 64
	default:
		return 32
	}
}

// SCRAMCredentials is the server-side verifier for one user: computed once
// when the password is set (see ComputeSCRAMCredentials) and stored instead
// of the password itself.
type SCRAMCredentials struct {
	Hash       SCRAMHash
	Salt       []byte
	Iterations int

	// StoredKey is H(ClientKey); ServerKey is HMAC(SaltedPassword,
	// "Server Key"). Neither reveals the password.
	StoredKey []byte
	ServerKey []byte
}

// SCRAMCredentialLookup resolves a username to its stored credentials.
// Returning (nil, nil) means the user does not exist.
type SCRAMCredentialLookup interface {
	LookupCredentials(ctx context.Context, username string) (*SCRAMCredentials, error)
}

// SCRAMCredentialLookupFunc adapts a plain function to SCRAMCredentialLookup.
type SCRAMCredentialLookupFunc func(ctx context.Context, username string) (*SCRAMCredentials, error)

func (f SCRAMCredentialLookupFunc) LookupCredentials(ctx context.Context, username string) (*SCRAMCredentials, error) {
	return f(ctx, username)
}

var ErrSCRAMInvalidCredentials = errors.New("mqttcore: invalid SCRAM credentials")

// scramState carries the handshake between the two AUTH round trips.
type scramState struct {
	username    string
	serverNonce string
	authMessage string
	credentials *SCRAMCredentials
	hashType    SCRAMHash
}

// SCRAMAuthenticator implements SCRAM (RFC 5802) over v5 enhanced
// authentication. It owns the protocol mechanics; callers supply only the
// credential lookup.
type SCRAMAuthenticator struct {
	lookup SCRAMCredentialLookup
	hashes []SCRAMHash
}

// NewSCRAMAuthenticator creates a SCRAM authenticator. With no explicit
// hashes it speaks SCRAM-SHA-256 only; pass more for migration scenarios.
func NewSCRAMAuthenticator(lookup SCRAMCredentialLookup, hashes ...SCRAMHash) *SCRAMAuthenticator {
	if len(hashes) == 0 {
		hashes = []SCRAMHash{SCRAMHashSHA256}
	}
	return &SCRAMAuthenticator{lookup: lookup, hashes: hashes}
}

// SupportsMethod reports whether method names one of the configured hashes.
func (a *SCRAMAuthenticator) SupportsMethod(method string) bool {
	_, ok := a.hashForMethod(method)
	return ok
}

func (a *SCRAMAuthenticator) hashForMethod(method string) (SCRAMHash, bool) {
	for _, h := range a.hashes {
		if h.String() == method {
			return h, true
		}
	}
	return SCRAMHashSHA256, false
}

func scramReject() *EnhancedAuthResult {
	return &EnhancedAuthResult{Success: false, ReasonCode: ReasonNotAuthorized}
}

// AuthStart consumes the client-first-message ("n,,n=<user>,r=<nonce>")
// and produces the server challenge.
func (a *SCRAMAuthenticator) AuthStart(ctx context.Context, authCtx *EnhancedAuthContext) (*EnhancedAuthResult, error) {
	hashType, ok := a.hashForMethod(authCtx.AuthMethod)
	if !ok {
		return scramReject(), nil
	}

	clientFirst := string(authCtx.AuthData)
	username, clientNonce := scramParseClientFirst(clientFirst)
	if username == "" || clientNonce == "" {
		return scramReject(), nil
	}

	creds, err := a.lookup.LookupCredentials(ctx, username)
	if err != nil {
		return nil, err
	}
	if creds == nil || creds.Hash != hashType {
		return scramReject(), nil
	}

	serverNonce := clientNonce + scramNonce()
	serverFirst := fmt.Sprintf("r=%s,s=%s,i=%d",
		serverNonce, base64.StdEncoding.EncodeToString(creds.Salt), creds.Iterations)

	state := &scramState{
		username:    username,
		serverNonce: serverNonce,
		authMessage: scramBareMessage(clientFirst) + "," + serverFirst,
		credentials: creds,
		hashType:    hashType,
	}

	return &EnhancedAuthResult{
		Continue:   true,
		ReasonCode: ReasonContinueAuth,
		AuthData:   []byte(serverFirst),
		State:      state,
	}, nil
}

// AuthContinue consumes the client-final-message and checks the proof.
func (a *SCRAMAuthenticator) AuthContinue(_ context.Context, authCtx *EnhancedAuthContext) (*EnhancedAuthResult, error) {
	state, ok := authCtx.State.(*scramState)
	if !ok || state == nil {
		return scramReject(), nil
	}
	newHash := state.hashType.newHash()

	channelBinding, nonce, proofB64 := scramParseClientFinal(string(authCtx.AuthData))
	if nonce != state.serverNonce {
		return scramReject(), nil
	}

	clientProof, err := base64.StdEncoding.DecodeString(proofB64)
	if err != nil {
		return scramReject(), nil
	}

	authMessage := state.authMessage + "," + fmt.Sprintf("c=%s,r=%s", channelBinding, nonce)

	sig := hmac.New(newHash, state.credentials.StoredKey)
	sig.Write([]byte(authMessage))
	clientSignature := sig.Sum(nil)

	if len(clientProof) != len(clientSignature) {
		return scramReject(), nil
	}
	clientKey := make([]byte, len(clientProof))
	for i := range clientProof {
		clientKey[i] = clientProof[i] ^ clientSignature[i]
	}

	h := newHash()
	h.Write(clientKey)
	if !hmac.Equal(h.Sum(nil), state.credentials.StoredKey) {
		return scramReject(), nil
	}

	// server-final-message carries the server signature so the client can
	// authenticate us back.
	srvSig := hmac.New(newHash, state.credentials.ServerKey)
	srvSig.Write([]byte(authMessage))
	serverFinal := "v=" + base64.StdEncoding.EncodeToString(srvSig.Sum(nil))

	return &EnhancedAuthResult{
		Success:    true,
		ReasonCode: ReasonSuccess,
		AuthData:   []byte(serverFinal),
	}, nil
}

// ComputeSCRAMCredentials derives the stored verifier from a plaintext
// password. The salt must be random and unique per user; iterations should
// be at least 4096.
func ComputeSCRAMCredentials(hashType SCRAMHash, password string, salt []byte, iterations int) *SCRAMCredentials {
	newHash := hashType.newHash()

	saltedPassword := pbkdf2.Key([]byte(password), salt, iterations, hashType.keySize(), newHash)

	ck := hmac.New(newHash, saltedPassword)
	ck.Write([]byte("Client Key"))
	clientKey := ck.Sum(nil)

	h := newHash()
	h.Write(clientKey)
	storedKey := h.Sum(nil)

	sk := hmac.New(newHash, saltedPassword)
	sk.Write([]byte("Server Key"))
	serverKey := sk.Sum(nil)

	return &SCRAMCredentials{
		Hash:       hashType,
		Salt:       salt,
		Iterations: iterations,
		StoredKey:  storedKey,
		ServerKey:  serverKey,
	}
}

// GenerateSalt returns 16 random bytes for ComputeSCRAMCredentials.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	return salt, nil
}

func scramParseClientFirst(msg string) (username, nonce string) {
	for _, part := range strings.Split(msg, ",") {
		if v, ok := strings.CutPrefix(part, "n="); ok && v != "" {
			username = v
		}
		if v, ok := strings.CutPrefix(part, "r="); ok {
			nonce = v
		}
	}
	return
}

// scramBareMessage strips the GS2 header ("n,," / "y,," / "p=...") from a
// client-first-message.
func scramBareMessage(msg string) string {
	if idx := strings.Index(msg, "n="); idx >= 0 {
		return msg[idx:]
	}
	return msg
}

func scramParseClientFinal(msg string) (channelBinding, nonce, proof string) {
	for _, part := range strings.Split(msg, ",") {
		switch {
		case strings.HasPrefix(part, "c="):
			channelBinding = part[2:]
		case strings.HasPrefix(part, "r="):
			nonce = part[2:]
		case strings.HasPrefix(part, "p="):
			proof = part[2:]
		}
	}
	return
}

func scramNonce() string {
	b := make([]byte, 18)
	if _, err := rand.Read(b); err != nil {
		return "static-nonce"
	}
	return base64.StdEncoding.EncodeToString(b)
}
