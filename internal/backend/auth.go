package backend

import (
	"context"
	"net/http"
)

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	RoleID   int    `json:"role_id,omitempty"`
}

// LoginResult is what the backend reveals about the new session.
type LoginResult struct {
	Token     string
	UserID    int
	Name      string
	Role      string
	VehicleID int
}

type loginWire struct {
	AccessToken string `json:"access_token"`
	Token       string `json:"token"`
	UserID      int    `json:"user_id"`
	VehicleID   int    `json:"vehicle_id"`
	User        struct {
		ID        int    `json:"id"`
		Name      string `json:"name"`
		Role      string `json:"role"`
		VehicleID int    `json:"vehicle_id"`
	} `json:"user"`
}

func (w loginWire) result() LoginResult {
	r := LoginResult{
		Token:     w.AccessToken,
		UserID:    w.User.ID,
		Name:      w.User.Name,
		Role:      w.User.Role,
		VehicleID: w.VehicleID,
	}
	if r.Token == "" {
		r.Token = w.Token
	}
	if r.UserID == 0 {
		r.UserID = w.UserID
	}
	if r.VehicleID == 0 {
		r.VehicleID = w.User.VehicleID
	}
	return r
}

func (c *Client) Login(ctx context.Context, creds Credentials) (LoginResult, error) {
	var w loginWire
	if err := c.do(ctx, request{op: "login", method: http.MethodPost, path: "/login", body: creds}, &w); err != nil {
		return LoginResult{}, err
	}
	return w.result(), nil
}

// Logout ends the session on the backend and drops cached reference data,
// which may be scoped to the user.
func (c *Client) Logout(ctx context.Context) error {
	c.FlushCache()
	return c.do(ctx, request{op: "logout", method: http.MethodPost, path: "/logout"}, nil)
}
