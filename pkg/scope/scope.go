// Package scope carries the identity of the request a statement is executed for.
//
// The identity travels with the request's context.Context. It is attached once at
// the boundary where the request begins and read back wherever a statement is
// rewritten, so concurrent requests never observe each other's tenant or user.
//
//	ctx = scope.WithInfo(ctx, scope.Info{TenantID: "acme", UserID: "42"})
//	rows, err := conn.QueryAll(ctx, dbconn.NewStatement("SELECT * FROM orders"))
package scope

import "context"

// Info is the identity of the in-flight request. An empty field means absent.
type Info struct {
	UserID     string `json:"userId,omitempty" yaml:"user_id,omitempty"`
	UserName   string `json:"userName,omitempty" yaml:"user_name,omitempty"`
	RealName   string `json:"realName,omitempty" yaml:"real_name,omitempty"`
	TenantID   string `json:"tenantId,omitempty" yaml:"tenant_id,omitempty"`
	TenantName string `json:"tenantName,omitempty" yaml:"tenant_name,omitempty"`
}

// WithUser returns a copy of i carrying the given user fields.
func (i Info) WithUser(userID, userName, realName string) Info {
	i.UserID = userID
	i.UserName = userName
	i.RealName = realName
	return i
}

// WithTenant returns a copy of i carrying the given tenant fields.
func (i Info) WithTenant(tenantID, tenantName string) Info {
	i.TenantID = tenantID
	i.TenantName = tenantName
	return i
}

// HasTenant reports whether a non-empty tenant identifier is present.
func (i Info) HasTenant() bool {
	return i.TenantID != ""
}

type infoCtxKey struct{}

// WithInfo attaches info to ctx.
func WithInfo(ctx context.Context, info Info) context.Context {
	return context.WithValue(ctx, infoCtxKey{}, info)
}

// FromContext returns the identity attached to ctx, if any.
func FromContext(ctx context.Context) (Info, bool) {
	if ctx == nil {
		return Info{}, false
	}
	info, ok := ctx.Value(infoCtxKey{}).(Info)
	return info, ok
}

// Provider exposes the identity of the current request. Every accessor may
// report the field as absent.
type Provider interface {
	CurrentUserID(ctx context.Context) (string, bool)
	CurrentUserName(ctx context.Context) (string, bool)
	CurrentRealName(ctx context.Context) (string, bool)
	CurrentTenantID(ctx context.Context) (string, bool)
	CurrentTenantName(ctx context.Context) (string, bool)
}

// Resolve builds an Info by querying p for the request bound to ctx.
func Resolve(ctx context.Context, p Provider) Info {
	if p == nil {
		return Info{}
	}
	var info Info
	info.UserID, _ = p.CurrentUserID(ctx)
	info.UserName, _ = p.CurrentUserName(ctx)
	info.RealName, _ = p.CurrentRealName(ctx)
	info.TenantID, _ = p.CurrentTenantID(ctx)
	info.TenantName, _ = p.CurrentTenantName(ctx)
	return info
}

// ContextProvider is the default Provider. It reads the Info attached with WithInfo.
type ContextProvider struct{}

var _ Provider = ContextProvider{}

func (ContextProvider) CurrentUserID(ctx context.Context) (string, bool) {
	return field(ctx, func(i Info) string { return i.UserID })
}

func (ContextProvider) CurrentUserName(ctx context.Context) (string, bool) {
	return field(ctx, func(i Info) string { return i.UserName })
}

func (ContextProvider) CurrentRealName(ctx context.Context) (string, bool) {
	return field(ctx, func(i Info) string { return i.RealName })
}

func (ContextProvider) CurrentTenantID(ctx context.Context) (string, bool) {
	return field(ctx, func(i Info) string { return i.TenantID })
}

func (ContextProvider) CurrentTenantName(ctx context.Context) (string, bool) {
	return field(ctx, func(i Info) string { return i.TenantName })
}

func field(ctx context.Context, get func(Info) string) (string, bool) {
	info, ok := FromContext(ctx)
	if !ok {
		return "", false
	}
	v := get(info)
	return v, v != ""
}

// Static is a Provider that always reports the same identity. It is meant for
// batch jobs and command line tools that act on behalf of a single tenant.
type Static Info

var _ Provider = Static{}

func (s Static) CurrentUserID(context.Context) (string, bool)   { return s.UserID, s.UserID != "" }
func (s Static) CurrentUserName(context.Context) (string, bool) { return s.UserName, s.UserName != "" }
func (s Static) CurrentRealName(context.Context) (string, bool) { return s.RealName, s.RealName != "" }
func (s Static) CurrentTenantID(context.Context) (string, bool) { return s.TenantID, s.TenantID != "" }
func (s Static) CurrentTenantName(context.Context) (string, bool) {
	return s.TenantName, s.TenantName != ""
}
