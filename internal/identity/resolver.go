package identity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

const (
	KindUser = "user"
	KindIP   = "ip"
)

// Key strategies accepted by KeyFunc.
const (
	StrategyUser   = "user"
	StrategyIP     = "ip"
	StrategyIPPath = "ip_path"
)

// UnknownIP is the client IP when no proxy header carries one.
const UnknownIP = "unknown"

// ClientKey represents a normalized client identifier.
type ClientKey struct {
	Kind string
	ID   string
	Key  string
}

type userCtxKey struct{}

// WithUser attaches an authenticated user id to ctx.
func WithUser(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userCtxKey{}, id)
}

// UserFromContext returns the user id set by WithUser.
func UserFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userCtxKey{}).(string)
	if !ok || strings.TrimSpace(id) == "" {
		return "", false
	}
	return strings.TrimSpace(id), true
}

// Resolver resolves a client key from an HTTP request.
type Resolver struct {
	UserHeader string
	// TrustUserHeader reads UserHeader only when an authenticating proxy sets it;
	// otherwise any client could mint a fresh user id per request.
	TrustUserHeader bool
	// TrustRemoteAddr uses the socket peer when no proxy header is present.
	TrustRemoteAddr bool
}

func NewResolver(userHeader string) *Resolver {
	if strings.TrimSpace(userHeader) == "" {
		userHeader = "X-User-Id"
	}
	return &Resolver{UserHeader: userHeader}
}

// ClientIP 按 CF-Connecting-IP -> X-Real-IP -> X-Forwarded-For 首跳 的顺序取客户端 IP
func (r *Resolver) ClientIP(req *http.Request) string {
	if ip := strings.TrimSpace(req.Header.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}
	if ip := strings.TrimSpace(req.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if ip := parseForwardedIP(req.Header.Get("X-Forwarded-For")); ip != "" {
		return ip
	}
	if r.TrustRemoteAddr {
		if ip := parseRemoteIP(req.RemoteAddr); ip != "" {
			return ip
		}
	}
	return UnknownIP
}

// Resolve resolves client identity in order: authenticated user -> trusted user header -> ip.
func (r *Resolver) Resolve(req *http.Request) (ClientKey, error) {
	if req == nil {
		return ClientKey{}, errors.New("nil request")
	}
	if user, ok := UserFromContext(req.Context()); ok {
		return newKey(KindUser, user), nil
	}
	if r.TrustUserHeader {
		if user := strings.TrimSpace(req.Header.Get(r.UserHeader)); user != "" {
			return newKey(KindUser, user), nil
		}
	}
	return newKey(KindIP, r.ClientIP(req)), nil
}

// KeyByUser keys on "user:<id>" when a user is known, else on the client IP.
func (r *Resolver) KeyByUser(req *http.Request) string {
	k, err := r.Resolve(req)
	if err != nil {
		return UnknownIP
	}
	if k.Kind == KindUser {
		return k.Key
	}
	return k.ID
}

func (r *Resolver) KeyByIP(req *http.Request) string {
	return r.ClientIP(req)
}

// KeyByIPPath keys on "<ip>:<path>" so each endpoint has its own budget.
func (r *Resolver) KeyByIPPath(req *http.Request) string {
	return r.ClientIP(req) + ":" + req.URL.Path
}

// KeyFunc maps a configured strategy name to its key function.
func (r *Resolver) KeyFunc(strategy string) (func(*http.Request) string, error) {
	switch strings.ToLower(strings.TrimSpace(strategy)) {
	case "", StrategyUser:
		return r.KeyByUser, nil
	case StrategyIP:
		return r.KeyByIP, nil
	case StrategyIPPath:
		return r.KeyByIPPath, nil
	default:
		return nil, fmt.Errorf("unknown key strategy %q", strategy)
	}
}

func newKey(kind, id string) ClientKey {
	return ClientKey{
		Kind: kind,
		ID:   id,
		Key:  kind + ":" + id,
	}
}

func parseForwardedIP(value string) string {
	if value == "" {
		return ""
	}
	parts := strings.Split(value, ",")
	return strings.TrimSpace(parts[0])
}

func parseRemoteIP(remoteAddr string) string {
	if remoteAddr == "" {
		return ""
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err == nil && host != "" {
		return host
	}
	return remoteAddr
}
