package cli

import (
	"fmt"
	"time"

	"ride-dispatch/internal/general/jwt"
)

// GenerateToken mints a JWT for the query API.
//
// Typical use (dev-only):
//
//	token, _, err := cli.GenerateToken(secret, "oncall-1", "OPERATOR", 12*time.Hour)
func GenerateToken(secret, subject, roleStr string, ttl time.Duration) (string, jwt.Claims, error) {
	role, ok := jwt.ParseRole(roleStr)
	if !ok {
		return "", jwt.Claims{}, fmt.Errorf("invalid role %q: want OPERATOR or SERVICE", roleStr)
	}

	mgr := jwt.NewManager(secret, ttl)
	token, claims, err := mgr.IssueToken(subject, role)
	if err != nil {
		return "", jwt.Claims{}, fmt.Errorf("issue token: %w", err)
	}
	return token, *claims, nil
}
