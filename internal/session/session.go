// Package session carries the per-browser context (citizen, active cart,
// admin token) across requests. Values live in a KV keyed by the sid cookie.
package session

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	KeyCitizen     = "ciudadanoId"
	KeyCart        = "carroId"
	KeyAdminToken  = "adminToken"
	KeyReadNotifs  = "notificacionesLeidas"
	KeyHiddenNotif = "notificacionesOcultas"
)

// KV is the persistence behind a session. Get returns "" for a missing or
// expired key.
type KV interface {
	Get(ctx context.Context, sid, key string) (string, error)
	Set(ctx context.Context, sid, key, value string) error
	Clear(ctx context.Context, sid, key string) error
}

// Context is the injected state every page works from.
type Context struct {
	SessionID  string
	CitizenID  string
	CartID     string
	AdminToken string
}

func (c Context) HasCitizen() bool { return c.CitizenID != "" }
func (c Context) HasCart() bool    { return c.CartID != "" }

type Manager struct {
	kv  KV
	now func() time.Time
}

func NewManager(kv KV) *Manager { return &Manager{kv: kv, now: time.Now} }

func (m *Manager) Load(ctx context.Context, sid string) (Context, error) {
	out := Context{SessionID: sid}
	if sid == "" {
		return out, nil
	}
	var err error
	if out.CitizenID, err = m.kv.Get(ctx, sid, KeyCitizen); err != nil {
		return out, err
	}
	if out.CartID, err = m.kv.Get(ctx, sid, KeyCart); err != nil {
		return out, err
	}
	if out.AdminToken, err = m.kv.Get(ctx, sid, KeyAdminToken); err != nil {
		return out, err
	}
	return out, nil
}

// BindCitizen selects a citizen and drops any cart bound to the previous one.
func (m *Manager) BindCitizen(ctx context.Context, sid, citizenID string) error {
	if err := m.kv.Set(ctx, sid, KeyCitizen, citizenID); err != nil {
		return err
	}
	return m.kv.Clear(ctx, sid, KeyCart)
}

func (m *Manager) BindCart(ctx context.Context, sid, cartID string) error {
	return m.kv.Set(ctx, sid, KeyCart, cartID)
}

func (m *Manager) ClearCart(ctx context.Context, sid string) error {
	return m.kv.Clear(ctx, sid, KeyCart)
}

// Logout forgets the citizen, the cart and the local notification state.
func (m *Manager) Logout(ctx context.Context, sid string) error {
	for _, k := range []string{KeyCitizen, KeyCart, KeyReadNotifs, KeyHiddenNotif} {
		if err := m.kv.Clear(ctx, sid, k); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) SetAdminToken(ctx context.Context, sid, token string) error {
	return m.kv.Set(ctx, sid, KeyAdminToken, token)
}

func (m *Manager) ClearAdminToken(ctx context.Context, sid string) error {
	return m.kv.Clear(ctx, sid, KeyAdminToken)
}

// AdminTokenUsable reports whether token can be sent to the API at all.
func (m *Manager) AdminTokenUsable(token string) bool {
	return TokenUsable(token, m.now())
}

// Members returns the set stored under key.
func (m *Manager) Members(ctx context.Context, sid, key string) (map[string]bool, error) {
	raw, err := m.kv.Get(ctx, sid, key)
	if err != nil || raw == "" {
		return map[string]bool{}, err
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		// unreadable sets are reset rather than failing the page
		return map[string]bool{}, nil
	}
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

// AddMember adds id to the set stored under key.
func (m *Manager) AddMember(ctx context.Context, sid, key, id string) error {
	set, err := m.Members(ctx, sid, key)
	if err != nil {
		return err
	}
	if set[id] {
		return nil
	}
	ids := make([]string, 0, len(set)+1)
	for k := range set {
		ids = append(ids, k)
	}
	ids = append(ids, id)
	b, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return m.kv.Set(ctx, sid, key, string(b))
}

// TokenUsable rejects an empty token and a JWT whose exp is already past. The
// signature is not checked here; the API does that. Opaque tokens pass.
func TokenUsable(token string, now time.Time) bool {
	token = strings.TrimSpace(token)
	if token == "" {
		return false
	}
	if strings.Count(token, ".") != 2 {
		return true
	}
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return true
	}
	if claims.ExpiresAt == nil {
		return true
	}
	return now.Before(claims.ExpiresAt.Time)
}
