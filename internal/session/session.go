// Package session holds who is logged in. A Context is created once per
// application, initialised on login and cleared on logout, and handed to the
// components that need the identity or the bearer token.
package session

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"minibus.schoolride.org/internal/clock"
	"minibus.schoolride.org/internal/fault"
)

var (
	ErrNoSession = errors.New("session: not logged in")
	ErrExpired   = errors.New("session: token expired")
)

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleDriver Role = "driver"
	RoleParent Role = "parent"
)

// RoleFromID maps the backend's numeric role ids.
func RoleFromID(id int) (Role, bool) {
	switch id {
	case 1:
		return RoleAdmin, true
	case 2:
		return RoleDriver, true
	case 3:
		return RoleParent, true
	}
	return "", false
}

// ParseRole accepts a role name in any case.
func ParseRole(s string) (Role, bool) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleAdmin, RoleDriver, RoleParent:
		return r, true
	}
	return "", false
}

type Info struct {
	UserID    int       `json:"user_id"`
	Name      string    `json:"name,omitempty"`
	Role      Role      `json:"role"`
	VehicleID int       `json:"vehicle_id,omitempty"`
	Token     string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

type Context struct {
	clock clock.Clock

	mu      sync.RWMutex
	current *Info
}

func New(clk clock.Clock) *Context {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Context{clock: clk}
}

// Init starts a session. Fields left empty in info are filled from the
// token's claims when the token is a JWT; the signature is the backend's
// concern and is not verified here.
func (c *Context) Init(token string, info Info) (Info, error) {
	info.Token = strings.TrimSpace(token)
	if looksLikeJWT(info.Token) {
		if err := fillFromClaims(info.Token, &info); err != nil {
			return Info{}, fault.InputError{Field: "token", Reason: "unreadable claims", Err: err}
		}
	}
	if info.UserID <= 0 {
		return Info{}, fault.InputError{Field: "user_id", Reason: "login response carried no user"}
	}
	if info.Role == "" {
		return Info{}, fault.InputError{Field: "role", Reason: "login response carried no role"}
	}
	if !info.ExpiresAt.IsZero() && !c.clock.Now().Before(info.ExpiresAt) {
		return Info{}, ErrExpired
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	stored := info
	c.current = &stored
	return info, nil
}

// Clear ends the session. Clearing an empty session is allowed.
func (c *Context) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = nil
}

// Current returns the logged-in identity. An expired session is cleared.
func (c *Context) Current() (Info, error) {
	c.mu.RLock()
	cur := c.current
	c.mu.RUnlock()

	if cur == nil {
		return Info{}, ErrNoSession
	}
	if !cur.ExpiresAt.IsZero() && !c.clock.Now().Before(cur.ExpiresAt) {
		c.Clear()
		return Info{}, ErrExpired
	}
	return *cur, nil
}

func (c *Context) Active() bool {
	_, err := c.Current()
	return err == nil
}

// AuthHeader is the Authorization header value, empty without a token.
func (c *Context) AuthHeader() string {
	info, err := c.Current()
	if err != nil || info.Token == "" {
		return ""
	}
	return "Bearer " + info.Token
}

// SetVehicle records the vehicle a driver operates, resolved after login.
func (c *Context) SetVehicle(vehicleID int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return ErrNoSession
	}
	c.current.VehicleID = vehicleID
	return nil
}

func looksLikeJWT(token string) bool {
	return strings.Count(token, ".") == 2
}

func fillFromClaims(token string, info *Info) error {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return err
	}

	// Some backends nest the identity object in "sub".
	identity := map[string]any(claims)
	if sub, ok := claims["sub"].(map[string]any); ok {
		identity = sub
	}

	if info.UserID == 0 {
		info.UserID = firstInt(identity, "user_id", "id")
		if info.UserID == 0 {
			if sub, ok := claims["sub"].(string); ok {
				info.UserID, _ = strconv.Atoi(sub)
			}
		}
	}
	if info.Role == "" {
		if name, ok := identity["role"].(string); ok {
			info.Role, _ = ParseRole(name)
		}
		if info.Role == "" {
			info.Role, _ = RoleFromID(firstInt(identity, "role_id"))
		}
	}
	if info.Name == "" {
		info.Name, _ = identity["name"].(string)
	}
	if info.VehicleID == 0 {
		info.VehicleID = firstInt(identity, "vehicle_id")
	}
	if info.ExpiresAt.IsZero() {
		exp, err := claims.GetExpirationTime()
		if err != nil {
			return fmt.Errorf("exp: %w", err)
		}
		if exp != nil {
			info.ExpiresAt = exp.Time
		}
	}
	return nil
}

func firstInt(m map[string]any, keys ...string) int {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			return int(v)
		case string:
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
	}
	return 0
}
