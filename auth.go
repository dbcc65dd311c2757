package mqttcore

import (
	"context"
	"net"
)

// AuthResult is the outcome of an authentication attempt.
type AuthResult struct {
	Success    bool
	ReasonCode ReasonCode

	// AssignedClientID overrides the CONNECT packet's client id, for
	// servers that mint ids for clients that connect with an empty one.
	AssignedClientID string
}

// AuthContext carries everything an Authenticator needs to decide whether
// to admit a connecting client.
type AuthContext struct {
	ClientID      string
	Username      string
	Password      []byte
	RemoteAddr    net.Addr
	ConnectPacket *ConnectPacket
	CleanStart    bool
}

// Authenticator authenticates clients during the server-side handshake.
type Authenticator interface {
	Authenticate(ctx context.Context, authCtx *AuthContext) (*AuthResult, error)
}

// AuthenticatorFunc adapts a plain function to Authenticator.
type AuthenticatorFunc func(ctx context.Context, authCtx *AuthContext) (*AuthResult, error)

func (f AuthenticatorFunc) Authenticate(ctx context.Context, authCtx *AuthContext) (*AuthResult, error) {
	return f(ctx, authCtx)
}

// AllowAll is an Authenticator that admits every client, for tests and
// endpoints that enforce authorization elsewhere.
var AllowAll Authenticator = AuthenticatorFunc(func(context.Context, *AuthContext) (*AuthResult, error) {
	return &AuthResult{Success: true, ReasonCode: ReasonSuccess}, nil
})

// EnhancedAuthContext carries one step of a v5 enhanced authentication
// exchange: the method named in CONNECT, the AUTH data the peer sent, and
// any State the authenticator parked on the previous step.
type EnhancedAuthContext struct {
	ClientID   string
	AuthMethod string
	AuthData   []byte
	ReasonCode ReasonCode
	RemoteAddr net.Addr
	State      any
}

// EnhancedAuthResult is the authenticator's verdict for one step. Continue
// asks the server to send AuthData back in an AUTH challenge and wait for
// the client's next AUTH packet; Success/ReasonCode settle the handshake.
type EnhancedAuthResult struct {
	Success    bool
	Continue   bool
	ReasonCode ReasonCode
	AuthData   []byte
	State      any

	AssignedClientID string
}

// EnhancedAuthenticator implements multi-step authentication over AUTH
// packets (a v5-only exchange); SCRAMAuthenticator is the bundled
// implementation.
type EnhancedAuthenticator interface {
	// SupportsMethod reports whether the given Authentication Method
	// (e.g. "SCRAM-SHA-256") is one this authenticator speaks.
	SupportsMethod(method string) bool

	// AuthStart handles the data carried on CONNECT itself.
	AuthStart(ctx context.Context, authCtx *EnhancedAuthContext) (*EnhancedAuthResult, error)

	// AuthContinue handles each subsequent AUTH packet.
	AuthContinue(ctx context.Context, authCtx *EnhancedAuthContext) (*EnhancedAuthResult, error)
}
